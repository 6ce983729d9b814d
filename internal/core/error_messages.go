package core

// Error Codes Reference
//
// Errors that end a run are mapped to a short message with a code the
// operator can quote when asking for help.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid birth date: A birth date is not DD/MM/YYYY
//	         Action: Fix the row or rerun with ROW_ERROR_POLICY=skip
//	         Patterns: "invalid birth date"
//
//	VAL004 - Missing column: A configured column label is not in the header
//	         Action: Check the header or the COLUMN_* settings
//	         Patterns: "missing required column"
//
//	VAL007 - Malformed row: A data row has the wrong number of fields or bad quoting
//	         Action: Fix the row or rerun with ROW_ERROR_POLICY=skip
//	         Patterns: "malformed row"
//
// # File Errors (FILE001-FILE099)
//
//	FILE002 - Invalid CSV: The header row could not be parsed
//	          Action: Check CSV_DELIMITER and the file's quoting
//	          Patterns: "invalid csv"
//
//	FILE003 - Encoding: The file's charset has no decoder
//	          Action: Set INPUT_ENCODING to a supported charset
//	          Patterns: "unsupported encoding"
//
//	FILE005 - Empty file: The file has no header row
//	          Action: Export the roster again
//	          Patterns: "empty file"
//
//	FILE006 - File not found: The roster path does not exist
//	          Action: Check INPUT_PATH or --file
//	          Patterns: "no such file", "cannot find the file"
//
// # FHIR Server Errors (FHIR001-FHIR099)
//
//	FHIR001 - Connection refused: The FHIR server is not listening
//	          Action: Check FHIR_BASE_URL and that the server is up
//	          Patterns: "connection refused"
//
//	FHIR002 - Timeout: The FHIR server did not answer in time
//	          Action: Raise FHIR_TIMEOUT or check the server's health
//	          Patterns: "timeout", "deadline exceeded"
//
//	FHIR003 - Unknown host: The FHIR server's host name does not resolve
//	          Action: Check FHIR_BASE_URL
//	          Patterns: "no such host"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Cancelled: The run was interrupted
//	         Action: Rows already submitted stay on the server; rerun when ready
//	         Patterns: "context canceled"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the log output for the underlying error
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: more specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Validation Errors (VAL001-VAL007)
	// =========================================================================
	{
		pattern: "invalid birth date",
		msg: UserMessage{
			Message: "Invalid birth date detected",
			Action:  "Use DD/MM/YYYY, or rerun with ROW_ERROR_POLICY=skip",
			Code:    "VAL001",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "Check the header row or the COLUMN_* settings",
			Code:    "VAL004",
		},
	},
	{
		pattern: "malformed row",
		msg: UserMessage{
			Message: "A row could not be parsed",
			Action:  "Fix the row, or rerun with ROW_ERROR_POLICY=skip",
			Code:    "VAL007",
		},
	},

	// =========================================================================
	// File Errors (FILE002-FILE006)
	// =========================================================================
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check CSV_DELIMITER and the file's quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported encoding",
		msg: UserMessage{
			Message: "File encoding is not supported",
			Action:  "Set INPUT_ENCODING to a supported charset such as ISO-8859-1",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The roster file is empty",
			Action:  "Export the roster again with a header row",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "Roster file not found",
			Action:  "Check INPUT_PATH or the --file flag",
			Code:    "FILE006",
		},
	},
	{
		pattern: "cannot find the file",
		msg: UserMessage{
			Message: "Roster file not found",
			Action:  "Check INPUT_PATH or the --file flag",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// FHIR Server Errors (FHIR001-FHIR003)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the FHIR server",
			Action:  "Check FHIR_BASE_URL and that the server is running",
			Code:    "FHIR001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The FHIR server did not respond in time",
			Action:  "Raise FHIR_TIMEOUT or check the server's health",
			Code:    "FHIR002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The FHIR server did not respond in time",
			Action:  "Raise FHIR_TIMEOUT or check the server's health",
			Code:    "FHIR002",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "The FHIR server's host name could not be resolved",
			Action:  "Check FHIR_BASE_URL",
			Code:    "FHIR003",
		},
	},

	// =========================================================================
	// Run Errors (RUN001)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Rows already submitted stay on the server; rerun when ready",
			Code:    "RUN001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log output for the underlying error",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
//
// Example:
//
//	err := errors.New(`line 3: invalid birth date "1990-03-15": expected DD/MM/YYYY`)
//	msg := MapError(err)
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern.
// Returns false for the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
