package repository

import (
	"database/sql"
	"testing"
	"time"
)

func TestNullString(t *testing.T) {
	if got := nullString(""); got.Valid {
		t.Error("空文字列はNULLになるべき")
	}
	got := nullString("https://example.com/logo.png")
	if !got.Valid || got.String != "https://example.com/logo.png" {
		t.Errorf("nullString = %+v", got)
	}
}

func TestNullStringValue(t *testing.T) {
	if got := nullStringValue(sql.NullString{}); got != "" {
		t.Errorf("NULLは空文字列になるべき: %q", got)
	}
	if got := nullStringValue(sql.NullString{String: "x", Valid: true}); got != "x" {
		t.Errorf("nullStringValue = %q", got)
	}
}

func TestNullTime(t *testing.T) {
	if got := nullTime(nil); got.Valid {
		t.Error("nilはNULLになるべき")
	}
	now := time.Now()
	got := nullTime(&now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Errorf("nullTime = %+v", got)
	}
}
