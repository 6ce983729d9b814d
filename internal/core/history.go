package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// HistoryStore records import runs and their rows in Postgres. It is an
// audit trail only; nothing reads it back to resume a run.
type HistoryStore struct {
	db DBTX
}

// NewHistoryStore creates a HistoryStore on db.
func NewHistoryStore(db DBTX) *HistoryStore {
	return &HistoryStore{db: db}
}

var historySchema = []string{
	`CREATE TABLE IF NOT EXISTS import_runs (
		id                   uuid PRIMARY KEY,
		file_name            text NOT NULL,
		encoding             text,
		encoding_confidence  int4,
		encoding_forced      boolean NOT NULL DEFAULT false,
		dry_run              boolean NOT NULL DEFAULT false,
		started_at           timestamptz NOT NULL,
		finished_at          timestamptz,
		status               text NOT NULL,
		error_code           text,
		rows_total           int4 NOT NULL DEFAULT 0,
		patients_created     int4 NOT NULL DEFAULT 0,
		patients_failed      int4 NOT NULL DEFAULT 0,
		observations_created int4 NOT NULL DEFAULT 0,
		observations_failed  int4 NOT NULL DEFAULT 0,
		observations_skipped int4 NOT NULL DEFAULT 0,
		rows_skipped         int4 NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS import_rows (
		run_id             uuid NOT NULL REFERENCES import_runs(id) ON DELETE CASCADE,
		line               int4 NOT NULL,
		cpf                text,
		patient_id         text,
		patient_status     text NOT NULL,
		observation_status text NOT NULL,
		http_status        int4,
		message            text,
		recorded_at        timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, line)
	)`,
	`CREATE INDEX IF NOT EXISTS import_runs_started_at_idx ON import_runs (started_at DESC)`,
}

// EnsureSchema creates the history tables if they do not exist.
func (h *HistoryStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range historySchema {
		if _, err := h.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create history schema: %w", err)
		}
	}
	return nil
}

// StartRun inserts the run row in the running state.
func (h *HistoryStore) StartRun(ctx context.Context, run *RunResult) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO import_runs (id, file_name, dry_run, started_at, status)
		VALUES ($1, $2, $3, $4, $5)`,
		ToPgUUID(run.RunID),
		run.File,
		run.DryRun,
		ToPgTimestamptz(run.StartedAt),
		string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordRow stores one row outcome. Recording the same line twice keeps the first.
func (h *HistoryStore) RecordRow(ctx context.Context, runID string, row RowOutcome) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO import_rows (run_id, line, cpf, patient_id, patient_status, observation_status, http_status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, line) DO NOTHING`,
		ToPgUUID(runID),
		int32(row.Line),
		ToPgText(row.CPF),
		ToPgText(row.PatientID),
		string(row.Patient),
		string(row.Observation),
		ToPgInt4(row.HTTPStatus),
		ToPgTruncatedText(row.Message, maxMessageLen),
	)
	if err != nil {
		return fmt.Errorf("insert row %d of run %s: %w", row.Line, runID, err)
	}
	return nil
}

// FinishRun writes the final status, detection and counts.
func (h *HistoryStore) FinishRun(ctx context.Context, run *RunResult) error {
	tag, err := h.db.Exec(ctx, `
		UPDATE import_runs SET
			encoding = $2,
			encoding_confidence = $3,
			encoding_forced = $4,
			finished_at = $5,
			status = $6,
			error_code = $7,
			rows_total = $8,
			patients_created = $9,
			patients_failed = $10,
			observations_created = $11,
			observations_failed = $12,
			observations_skipped = $13,
			rows_skipped = $14
		WHERE id = $1`,
		ToPgUUID(run.RunID),
		ToPgText(run.Detection.Charset),
		int32(run.Detection.Confidence),
		run.Detection.Forced,
		ToPgTimestamptz(run.FinishedAt),
		string(run.Status),
		ToPgText(run.ErrorCode),
		int32(run.Rows),
		int32(run.PatientsCreated),
		int32(run.PatientsFailed),
		int32(run.ObservationsCreated),
		int32(run.ObservationsFailed),
		int32(run.ObservationsSkipped),
		int32(run.RowsSkipped),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: run not found", run.RunID)
	}
	return nil
}
