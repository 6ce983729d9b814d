package core

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestToPgText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		{name: "simple string", input: "hello", wantValid: true, wantValue: "hello"},
		{name: "trims whitespace", input: "  hello  ", wantValid: true, wantValue: "hello"},
		{name: "empty string", input: "", wantValid: false},
		{name: "only whitespace", input: "   \t\n", wantValid: false},
		{name: "accents kept", input: "Observação", wantValid: true, wantValue: "Observação"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgText(tt.input)
			if got.Valid != tt.wantValid {
				t.Errorf("ToPgText(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Valid && got.String != tt.wantValue {
				t.Errorf("ToPgText(%q).String = %q, want %q", tt.input, got.String, tt.wantValue)
			}
		})
	}
}

func TestToPgTruncatedText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{name: "short", input: "abc", n: 10, want: "abc"},
		{name: "exact", input: "abcde", n: 5, want: "abcde"},
		{name: "cut ascii", input: "abcdef", n: 3, want: "abc"},
		{name: "does not split rune", input: "aé", n: 2, want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgTruncatedText(tt.input, tt.n)
			if got.String != tt.want {
				t.Errorf("ToPgTruncatedText(%q, %d) = %q, want %q", tt.input, tt.n, got.String, tt.want)
			}
			if !utf8.ValidString(got.String) {
				t.Errorf("result is not valid UTF-8: %q", got.String)
			}
		})
	}
}

func TestToPgInt4(t *testing.T) {
	if got := ToPgInt4(0); got.Valid {
		t.Errorf("ToPgInt4(0) should be invalid, got %+v", got)
	}
	if got := ToPgInt4(201); !got.Valid || got.Int32 != 201 {
		t.Errorf("ToPgInt4(201) = %+v", got)
	}
}

func TestToPgUUID(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{name: "valid", input: "6f1c1f7e-3b0a-4c3b-9d7e-2a1b5c4d3e2f", wantValid: true},
		{name: "empty", input: "", wantValid: false},
		{name: "garbage", input: "not-a-uuid", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgUUID(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgUUID(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Valid && PgUUIDToString(got) != tt.input {
				t.Errorf("round trip = %q, want %q", PgUUIDToString(got), tt.input)
			}
		})
	}

	if s := PgUUIDToString(pgtype.UUID{}); s != "" {
		t.Errorf("PgUUIDToString(invalid) = %q, want empty", s)
	}
}

func TestToPgTimestamptz(t *testing.T) {
	if got := ToPgTimestamptz(time.Time{}); got.Valid {
		t.Errorf("zero time should be invalid")
	}
	now := time.Now()
	if got := ToPgTimestamptz(now); !got.Valid || !got.Time.Equal(now) {
		t.Errorf("ToPgTimestamptz(now) = %+v", got)
	}
}
