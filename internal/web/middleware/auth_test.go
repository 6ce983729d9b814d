package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	reject := func(w http.ResponseWriter, status int, msg string) {
		http.Error(w, msg, status)
	}

	tests := []struct {
		name       string
		keys       []string
		header     string
		wantStatus int
	}{
		{"no keys configured", nil, "", http.StatusNoContent},
		{"missing key", []string{"a"}, "", http.StatusUnauthorized},
		{"wrong key", []string{"a"}, "b", http.StatusForbidden},
		{"prefix of key", []string{"abc"}, "ab", http.StatusForbidden},
		{"first key", []string{"a", "b"}, "a", http.StatusNoContent},
		{"second key", []string{"a", "b"}, "b", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()

			APIKeyAuth(tt.keys, reject)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
