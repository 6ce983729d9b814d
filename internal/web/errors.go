package web

// errors.go writes every sandbox failure as a FHIR OperationOutcome, the way
// a real FHIR server reports errors to the importer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondOutcome(w, r, status, code, err)
//  3. The error is logged with the request ID for correlation
//  4. The client receives an OperationOutcome with the same diagnostics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/fhirload/internal/fhir"
)

// OperationOutcome issue codes used by the sandbox.
const (
	issueInvalid      = "invalid"
	issueNotFound     = "not-found"
	issueNotSupported = "not-supported"
	issueProcessing   = "processing"
	issueSecurity     = "security"
	issueTooLong      = "too-long"
)

// respondOutcome logs err and writes it as an OperationOutcome.
func respondOutcome(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	slog.Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"issue", code,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeOutcome(w, status, code, err.Error())
}

// writeOutcome writes an OperationOutcome without logging. Middleware uses it
// before a request reaches the handlers.
func writeOutcome(w http.ResponseWriter, status int, code, diagnostics string) {
	writeResource(w, status, fhir.NewOperationOutcome(code, diagnostics))
}

// writeResource encodes v as FHIR JSON.
// Logs encoding errors since headers are already sent.
func writeResource(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", fhir.ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
