package filter

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

var mealColumns = Columns{
	"id":          {Name: "id", Kind: KindNumber},
	"userid":      {Name: "user_id", Kind: KindNumber},
	"calories":    {Name: "calories", Kind: KindNumber},
	"date":        {Name: "date", Kind: KindDate},
	"description": {Name: "description", Kind: KindText},
	"withinlimit": {Name: "within_limit", Kind: KindBool},
}

func TestTranslate(t *testing.T) {
	sql, args, err := Translate("(Calories gt 500 && Date ge '2024-03-01T10:00:00') || WithinLimit eq false", mealColumns)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := "(((calories > ? AND date >= ?)) OR within_limit = ?)"
	if sql != want {
		t.Fatalf("expected sql=%q, got %q", want, sql)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != int64(500) {
		t.Fatalf("expected int64 500, got %#v", args[0])
	}
	if day, ok := args[1].(time.Time); !ok || !day.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected date truncated to day, got %#v", args[1])
	}
	if args[2] != false {
		t.Fatalf("expected false, got %#v", args[2])
	}
}

func TestTranslateSymbolsAndSwappedOperands(t *testing.T) {
	sql, args, err := Translate("100 <= calories and description != 'it''s'", mealColumns)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if sql != "(? <= calories AND description <> ?)" {
		t.Fatalf("unexpected sql %q", sql)
	}
	if args[1] != "it's" {
		t.Fatalf("expected escaped quote, got %#v", args[1])
	}
}

func TestTranslateEmpty(t *testing.T) {
	sql, args, err := Translate("   ", mealColumns)
	if err != nil || sql != "" || args != nil {
		t.Fatalf("expected empty translation, got %q %v %v", sql, args, err)
	}
}

func TestTranslateRejects(t *testing.T) {
	cases := []string{
		"password eq 'x'",
		"calories gt 'abc'",
		"calories gt 1; DROP TABLE meals",
		"withinlimit eq 1",
		"date eq 'yesterday'",
		"(calories gt 1",
		"calories gt",
		"calories 5",
		"description eq 'open",
		"calories gt 1 &&",
		"1 eq 1",
		"calories eq description",
		"calories ~ 1",
	}
	for _, expr := range cases {
		if _, _, err := Translate(expr, mealColumns); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("expected ErrInvalidFilter for %q, got %v", expr, err)
		}
	}
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage("", "", 10)
	if err != nil || page.Paged() || page.Size != 10 || page.Offset() != 0 {
		t.Fatalf("unexpected default page %+v (%v)", page, err)
	}
	page, err = ParsePage("1", "", 10)
	if err != nil || !page.Paged() || page.Size != 10 || page.Offset() != 0 {
		t.Fatalf("unexpected first page %+v (%v)", page, err)
	}
	page, err = ParsePage("3", "5", 10)
	if err != nil || page.Offset() != 10 {
		t.Fatalf("expected offset 10, got %+v (%v)", page, err)
	}
	page, err = ParsePage("1", "1000", 10)
	if err != nil || page.Size != MaxPageSize {
		t.Fatalf("expected page size capped, got %+v (%v)", page, err)
	}
	if _, err = ParsePage("0", "", 10); err == nil {
		t.Fatalf("expected error for page 0")
	}
	if _, err = ParsePage("", "x", 10); err == nil {
		t.Fatalf("expected error for bad page size")
	}
}

func TestParsePageRejectsOverflowingOffsets(t *testing.T) {
	page, err := ParsePage(strconv.Itoa(MaxPage), "1000", 10)
	if err != nil {
		t.Fatalf("expected last page accepted, got %v", err)
	}
	if page.Offset() < 0 {
		t.Fatalf("expected non-negative offset, got %d", page.Offset())
	}
	if _, err = ParsePage(strconv.Itoa(MaxPage+1), "100", 10); err == nil {
		t.Fatalf("expected error for page past MaxPage")
	}
	if _, err = ParsePage("99999999999999999999999", "", 10); err == nil {
		t.Fatalf("expected error for page outside int range")
	}
}
