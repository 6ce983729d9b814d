package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/fhirload/internal/fhir"
	"github.com/JonMunkholm/fhirload/internal/roster"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "birth date maps correctly",
			err:         fmt.Errorf("line 3: %w", &fhir.DateFormatError{Value: "1990-03-15"}),
			wantCode:    "VAL001",
			wantMessage: "Invalid birth date detected",
		},
		{
			name:        "missing column maps correctly",
			err:         &roster.MissingColumnError{Labels: []string{"Gênero"}, Header: []string{"Nome"}},
			wantCode:    "VAL004",
			wantMessage: "Required column is missing from CSV",
		},
		{
			name:        "malformed row maps correctly",
			err:         &roster.RowError{Line: 4, Err: errors.New("wrong number of fields")},
			wantCode:    "VAL007",
			wantMessage: "A row could not be parsed",
		},
		{
			name:        "unsupported encoding maps correctly",
			err:         fmt.Errorf("%w: %q", roster.ErrUnsupportedEncoding, "klingon"),
			wantCode:    "FILE003",
			wantMessage: "File encoding is not supported",
		},
		{
			name:        "missing file maps correctly",
			err:         errors.New("open roster: open patients.csv: no such file or directory"),
			wantCode:    "FILE006",
			wantMessage: "Roster file not found",
		},
		{
			name:        "connection refused maps correctly",
			err:         &fhir.TransportError{Method: "POST", URL: "http://localhost:8080/fhir/Patient", Err: errors.New("dial tcp: connection refused")},
			wantCode:    "FHIR001",
			wantMessage: "Unable to connect to the FHIR server",
		},
		{
			name:        "client timeout maps correctly",
			err:         errors.New("Client.Timeout exceeded while awaiting headers"),
			wantCode:    "FHIR002",
			wantMessage: "The FHIR server did not respond in time",
		},
		{
			name:        "deadline maps correctly",
			err:         errors.New("context deadline exceeded"),
			wantCode:    "FHIR002",
			wantMessage: "The FHIR server did not respond in time",
		},
		{
			name:        "dns failure maps correctly",
			err:         errors.New("dial tcp: lookup fhir.invalid: no such host"),
			wantCode:    "FHIR003",
			wantMessage: "The FHIR server's host name could not be resolved",
		},
		{
			name:        "cancellation maps correctly",
			err:         errors.New("context canceled"),
			wantCode:    "RUN001",
			wantMessage: "Import was cancelled",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("INVALID CSV HEADER"),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := errors.New("missing required column(s): \"Gênero\"")
	result := FormatUserError(err)

	expected := "Required column is missing from CSV (Code: VAL004). Check the header row or the COLUMN_* settings"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  errors.New("connection refused"),
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
		userErr := NewUserError(techErr)

		if userErr.Error() != "Unable to connect to the FHIR server" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}

		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}
