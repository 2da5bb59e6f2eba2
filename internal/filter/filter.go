// Package filter translates the query filter language into parameterised SQL.
//
// A filter is a boolean expression over whitelisted columns, for example
//
//	(calories gt 500 && date ge '2024-03-01') || withinlimit eq false
//
// Comparison words lt, gt, le, ge, eq, ne map to <, >, <=, >=, =, <>.
// The connectives && and || (or the words and, or) join comparisons. Every
// literal is bound as a parameter; identifiers must name a known column.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFilter is returned for any filter that does not parse.
var ErrInvalidFilter = errors.New("invalid filter")

// Kind is the value type of a filterable column.
type Kind int

const (
	// KindNumber columns accept integer or decimal literals.
	KindNumber Kind = iota
	// KindText columns accept quoted strings.
	KindText
	// KindBool columns accept true or false.
	KindBool
	// KindDate columns accept quoted dates and compare by day.
	KindDate
	// KindTimestamp columns accept quoted date-times.
	KindTimestamp
)

// Column describes one filterable column.
type Column struct {
	Name string // SQL column name.
	Kind Kind
}

// Columns maps lower-cased filter identifiers to SQL columns.
type Columns map[string]Column

// Names returns the sorted SQL column names of c, for help output.
func (c Columns) Names() []string {
	seen := make(map[string]struct{}, len(c))
	names := make([]string, 0, len(c))
	for _, column := range c {
		if _, ok := seen[column.Name]; ok {
			continue
		}
		seen[column.Name] = struct{}{}
		names = append(names, column.Name)
	}
	sort.Strings(names)
	return names
}

var comparators = map[string]string{
	"lt": "<", "<": "<",
	"gt": ">", ">": ">",
	"le": "<=", "<=": "<=",
	"ge": ">=", ">=": ">=",
	"eq": "=", "=": "=", "==": "=",
	"ne": "<>", "!=": "<>", "<>": "<>",
}

var connectives = map[string]string{
	"&&": "AND", "and": "AND",
	"||": "OR", "or": "OR",
}

// Translate converts expr into a SQL condition with bind arguments.
// An empty expr yields an empty condition.
func Translate(expr string, columns Columns) (string, []any, error) {
	if strings.TrimSpace(expr) == "" {
		return "", nil, nil
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return "", nil, err
	}
	p := &parser{tokens: tokens, columns: columns}
	sql, err := p.parseExpr(0)
	if err != nil {
		return "", nil, err
	}
	if !p.done() {
		return "", nil, invalid("unexpected %q", p.peek().text)
	}
	return sql, p.args, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, fmt.Sprintf(format, args...))
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case r == '\'' || r == '"':
			quote := r
			var sb strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == quote {
					if i+1 < len(runes) && runes[i+1] == quote {
						sb.WriteRune(quote)
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, invalid("unterminated string")
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String()})
		case strings.ContainsRune("<>=!&|", r):
			start := i
			for i < len(runes) && strings.ContainsRune("<>=!&|", runes[i]) {
				i++
			}
			op := string(runes[start:i])
			if _, ok := comparators[op]; !ok {
				if _, ok := connectives[op]; !ok {
					return nil, invalid("unknown operator %q", op)
				}
			}
			tokens = append(tokens, token{kind: tokOperator, text: op})
		case r == '-' || r == '.' || (r >= '0' && r <= '9'):
			start := i
			i++
			for i < len(runes) && (runes[i] == '.' || (runes[i] >= '0' && runes[i] <= '9')) {
				i++
			}
			text := string(runes[start:i])
			if _, errParse := strconv.ParseFloat(text, 64); errParse != nil {
				return nil, invalid("bad number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text})
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			start := i
			for i < len(runes) && (runes[i] == '_' || (runes[i] >= 'a' && runes[i] <= 'z') || (runes[i] >= 'A' && runes[i] <= 'Z') || (runes[i] >= '0' && runes[i] <= '9')) {
				i++
			}
			word := strings.ToLower(string(runes[start:i]))
			if _, ok := comparators[word]; ok {
				tokens = append(tokens, token{kind: tokOperator, text: word})
			} else if _, ok := connectives[word]; ok {
				tokens = append(tokens, token{kind: tokOperator, text: word})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: word})
			}
		default:
			return nil, invalid("unexpected character %q", r)
		}
	}
	return tokens, nil
}

// maxDepth bounds parenthesis nesting.
const maxDepth = 32

type parser struct {
	tokens  []token
	pos     int
	columns Columns
	args    []any
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() (token, bool) {
	if p.done() {
		return token{}, false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

// parseExpr parses term (connective term)*. AND and OR share precedence and the
// caller's parentheses decide grouping, matching SQL once every term is wrapped.
func (p *parser) parseExpr(depth int) (string, error) {
	if depth > maxDepth {
		return "", invalid("nesting too deep")
	}
	left, err := p.parseTerm(depth)
	if err != nil {
		return "", err
	}
	parts := []string{left}
	for !p.done() {
		tok := p.peek()
		conn, ok := connectives[tok.text]
		if tok.kind != tokOperator || !ok {
			break
		}
		p.pos++
		right, errTerm := p.parseTerm(depth)
		if errTerm != nil {
			return "", errTerm
		}
		parts = append(parts, conn, right)
	}
	if len(parts) == 1 {
		return left, nil
	}
	return "(" + strings.Join(parts, " ") + ")", nil
}

func (p *parser) parseTerm(depth int) (string, error) {
	tok, ok := p.next()
	if !ok {
		return "", invalid("unexpected end of filter")
	}
	if tok.kind == tokLParen {
		inner, err := p.parseExpr(depth + 1)
		if err != nil {
			return "", err
		}
		closing, ok := p.next()
		if !ok || closing.kind != tokRParen {
			return "", invalid("missing closing parenthesis")
		}
		return "(" + inner + ")", nil
	}

	opTok, ok := p.next()
	if !ok || opTok.kind != tokOperator {
		return "", invalid("expected comparison after %q", tok.text)
	}
	op, ok := comparators[opTok.text]
	if !ok {
		return "", invalid("expected comparison, got %q", opTok.text)
	}
	rightTok, ok := p.next()
	if !ok {
		return "", invalid("unexpected end of filter")
	}

	switch {
	case tok.kind == tokIdent && rightTok.kind != tokIdent:
		return p.comparison(tok, op, rightTok, false)
	case tok.kind != tokIdent && rightTok.kind == tokIdent:
		return p.comparison(rightTok, op, tok, true)
	case tok.kind == tokIdent && rightTok.kind == tokIdent:
		// true/false lex as identifiers.
		if isBoolWord(rightTok.text) {
			return p.comparison(tok, op, rightTok, false)
		}
		if isBoolWord(tok.text) {
			return p.comparison(rightTok, op, tok, true)
		}
		left, errLeft := p.column(tok.text)
		if errLeft != nil {
			return "", errLeft
		}
		right, errRight := p.column(rightTok.text)
		if errRight != nil {
			return "", errRight
		}
		if left.Kind != right.Kind {
			return "", invalid("cannot compare %s with %s", left.Name, right.Name)
		}
		return fmt.Sprintf("%s %s %s", left.Name, op, right.Name), nil
	default:
		return "", invalid("comparison needs a column")
	}
}

func (p *parser) column(ident string) (Column, error) {
	column, ok := p.columns[strings.ToLower(ident)]
	if !ok {
		return Column{}, invalid("unknown column %q", ident)
	}
	return column, nil
}

func (p *parser) comparison(ident token, op string, literal token, swapped bool) (string, error) {
	column, err := p.column(ident.text)
	if err != nil {
		return "", err
	}
	value, err := bindValue(column, literal)
	if err != nil {
		return "", err
	}
	p.args = append(p.args, value)
	if swapped {
		return fmt.Sprintf("? %s %s", op, column.Name), nil
	}
	return fmt.Sprintf("%s %s ?", column.Name, op), nil
}

func isBoolWord(word string) bool {
	return word == "true" || word == "false"
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the date and date-time layouts accepted in filters and request bodies.
// Zones are dropped so values compare as wall clock times.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

func bindValue(column Column, literal token) (any, error) {
	switch column.Kind {
	case KindNumber:
		if literal.kind != tokNumber {
			return nil, invalid("%s needs a number", column.Name)
		}
		if n, err := strconv.ParseInt(literal.text, 10, 64); err == nil {
			return n, nil
		}
		f, _ := strconv.ParseFloat(literal.text, 64)
		return f, nil
	case KindBool:
		if literal.kind != tokIdent || !isBoolWord(literal.text) {
			return nil, invalid("%s needs true or false", column.Name)
		}
		return literal.text == "true", nil
	case KindText:
		if literal.kind != tokString {
			return nil, invalid("%s needs a quoted string", column.Name)
		}
		return literal.text, nil
	case KindDate, KindTimestamp:
		if literal.kind != tokString {
			return nil, invalid("%s needs a quoted date", column.Name)
		}
		parsed, err := ParseTime(literal.text)
		if err != nil {
			return nil, invalid("%s: %v", column.Name, err)
		}
		if column.Kind == KindDate {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return parsed, nil
	default:
		return nil, invalid("unsupported column %s", column.Name)
	}
}
