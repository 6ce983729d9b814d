// Package core runs roster imports.
//
// A run visits the roster file twice: once to sniff its encoding, once to
// read it. Each data row is transformed into a FHIR Patient, submitted, and
// when the row carries notes and the Patient was created, followed by an
// Observation that references the new Patient. Rows are handled one at a
// time; nothing is retried.
//
// # Failures
//
// A Patient or Observation the server refuses is logged and counted, and
// the run moves on. A missing column, a transport failure or cancellation
// ends the run. A bad birth date or malformed row ends it under
// [PolicyAbort] and is skipped under [PolicySkip].
//
// Errors that end a run map to operator-facing messages and codes with
// [MapError]; see error_messages.go for the code list.
//
// # History
//
// When a [HistoryRecorder] is configured, every run and row is recorded.
// [HistoryStore] is the Postgres implementation. History write failures are
// logged and never end a run.
package core
