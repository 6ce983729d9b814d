package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/fhirload/internal/fhir"
	"github.com/JonMunkholm/fhirload/internal/roster"
)

// Submitter creates resources on a FHIR server. *fhir.Client satisfies it.
type Submitter interface {
	SubmitPatient(context.Context, fhir.Patient) (fhir.Submission, error)
	SubmitObservation(context.Context, fhir.Observation) (fhir.Submission, error)
}

// HistoryRecorder persists run and row outcomes. *HistoryStore satisfies it.
type HistoryRecorder interface {
	StartRun(ctx context.Context, run *RunResult) error
	RecordRow(ctx context.Context, runID string, row RowOutcome) error
	FinishRun(ctx context.Context, run *RunResult) error
}

// RowErrorPolicy decides what a bad birth date or malformed row does to a run.
type RowErrorPolicy string

const (
	PolicyAbort RowErrorPolicy = "abort" // stop the run at the first bad row
	PolicySkip  RowErrorPolicy = "skip"  // log the row, count it, move on
)

// ParseRowErrorPolicy accepts "abort" or "skip", case-insensitively.
// Empty means PolicyAbort.
func ParseRowErrorPolicy(s string) (RowErrorPolicy, error) {
	switch p := RowErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicySkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown row error policy %q (want abort or skip)", s)
	}
}

// Status is the outcome of one resource within a row.
type Status string

const (
	StatusCreated    Status = "created"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"     // nothing to submit, or row skipped by policy
	StatusNotReached Status = "not_reached" // an earlier step of the row failed
	StatusDryRun     Status = "dry_run"
)

// RowOutcome is what happened to one roster row.
type RowOutcome struct {
	Line        int
	CPF         string
	PatientID   string
	Patient     Status
	Observation Status
	HTTPStatus  int    // last HTTP status seen for the row, zero if none
	Message     string // failure detail or skip reason
}

// RunStatus is the final state of an import run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunResult summarizes an import run.
type RunResult struct {
	RunID     string
	File      string
	Detection roster.Detection
	DryRun    bool
	Status    RunStatus
	ErrorCode string

	Rows                int
	PatientsCreated     int
	PatientsFailed      int
	ObservationsCreated int
	ObservationsFailed  int
	ObservationsSkipped int
	RowsSkipped         int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the run, zero while it is running.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunResult) tally(o RowOutcome) {
	r.Rows++

	switch o.Patient {
	case StatusCreated:
		r.PatientsCreated++
	case StatusFailed:
		r.PatientsFailed++
	case StatusSkipped:
		r.RowsSkipped++
	}

	switch o.Observation {
	case StatusCreated:
		r.ObservationsCreated++
	case StatusFailed:
		r.ObservationsFailed++
	case StatusSkipped:
		r.ObservationsSkipped++
	}
}
