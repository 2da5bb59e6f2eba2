package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

type captureWriter struct {
	lines []string
}

func (w *captureWriter) Printf(format string, args ...any) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	l := newLogger(w)
	query := func() (string, int64) { return "SELECT * FROM daily_user_calories", 0 }

	l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
	if len(w.lines) != 0 {
		t.Fatalf("expected missing rows to stay silent, got %v", w.lines)
	}

	l.Trace(context.Background(), time.Now(), query, errors.New("disk I/O error"))
	if len(w.lines) != 1 {
		t.Fatalf("expected one logged error, got %d", len(w.lines))
	}

	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	if len(w.lines) != 2 {
		t.Fatalf("expected slow query to be logged, got %d lines", len(w.lines))
	}
}

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"file:meals.db":                       true,
		"sqlite:meals":                        true,
		"meals.sqlite":                        true,
		"postgres://u:p@localhost:5432/meals": false,
	}
	for dsn, want := range cases {
		if got := isSQLiteDSN(dsn); got != want {
			t.Fatalf("isSQLiteDSN(%q): expected %v, got %v", dsn, want, got)
		}
	}
}
