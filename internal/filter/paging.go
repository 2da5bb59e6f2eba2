package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxPageSize caps caller supplied page sizes.
const MaxPageSize = 100

// MaxPage is the largest page number whose offset fits in an int.
const MaxPage = math.MaxInt/MaxPageSize + 1

// Page is a 1-based page request. A zero Number requests every row.
type Page struct {
	Number int
	Size   int
}

// Paged reports whether the request asked for a single page.
func (p Page) Paged() bool {
	return p.Number > 0
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	if !p.Paged() {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// ParsePage reads page and pageSize query values. A blank page leaves the
// result unpaged; a blank pageSize falls back to defaultSize.
func ParsePage(pageRaw, sizeRaw string, defaultSize int) (Page, error) {
	page := Page{Size: defaultSize}
	if trimmed := strings.TrimSpace(pageRaw); trimmed != "" {
		n, err := strconv.Atoi(trimmed)
		if err != nil || n < 1 || n > MaxPage {
			return Page{}, fmt.Errorf("invalid page %q", pageRaw)
		}
		page.Number = n
	}
	if trimmed := strings.TrimSpace(sizeRaw); trimmed != "" {
		n, err := strconv.Atoi(trimmed)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("invalid pageSize %q", sizeRaw)
		}
		page.Size = n
	}
	if page.Size < 1 {
		page.Size = 1
	}
	if page.Size > MaxPageSize {
		page.Size = MaxPageSize
	}
	return page, nil
}
