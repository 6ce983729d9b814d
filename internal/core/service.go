package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fhirload/internal/fhir"
	"github.com/JonMunkholm/fhirload/internal/logging"
	"github.com/JonMunkholm/fhirload/internal/roster"
)

// HistoryTimeout bounds each history write so a slow database cannot stall a run.
var HistoryTimeout = 5 * time.Second

// rowSeparator is printed after every row.
var rowSeparator = strings.Repeat("=", 40)

// Options configure an import run.
type Options struct {
	Encoding      string // forced charset; empty means detect
	MinConfidence int    // warn when detection scores below this
	Delimiter     rune
	Columns       roster.Columns
	Policy        RowErrorPolicy
	DryRun        bool
	Transformer   fhir.Transformer
}

// Service runs roster imports: detect, read, transform, submit, one row at a time.
type Service struct {
	submitter Submitter
	history   HistoryRecorder
	out       io.Writer
	opts      Options
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistory records every run and row with h.
func WithHistory(h HistoryRecorder) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithOutput sends the row separator lines to w instead of stdout.
func WithOutput(w io.Writer) ServiceOption {
	return func(s *Service) { s.out = w }
}

// NewService creates a new Service instance. submitter may be nil when
// opts.DryRun is set.
func NewService(submitter Submitter, opts Options, options ...ServiceOption) (*Service, error) {
	if submitter == nil && !opts.DryRun {
		return nil, errors.New("a submitter is required unless dry run is enabled")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAbort
	}

	s := &Service{
		submitter: submitter,
		out:       os.Stdout,
		opts:      opts,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Run imports the roster at path. Rows are processed strictly in order and
// each is finished before the next is read.
//
// Per-row submission failures are logged and counted; they do not end the
// run. The run ends early on a missing column, a transport failure,
// cancellation of ctx, or a bad row under PolicyAbort. The returned
// RunResult is always non-nil and reflects the rows handled so far.
func (s *Service) Run(ctx context.Context, path string) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		File:      filepath.Base(path),
		DryRun:    s.opts.DryRun,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, result.RunID)
	log := logging.FromContext(ctx)

	s.startHistory(ctx, result)
	err := s.run(ctx, path, result)

	result.FinishedAt = time.Now().UTC()
	switch {
	case err == nil:
		result.Status = RunCompleted
	case ctx.Err() != nil:
		result.Status = RunCancelled
		result.ErrorCode = MapError(err).Code
	default:
		result.Status = RunFailed
		result.ErrorCode = MapError(err).Code
	}
	s.finishHistory(ctx, result)

	log.Info("import finished",
		"status", result.Status,
		"rows", result.Rows,
		"patients_created", result.PatientsCreated,
		"patients_failed", result.PatientsFailed,
		"observations_created", result.ObservationsCreated,
		"observations_failed", result.ObservationsFailed,
		"observations_skipped", result.ObservationsSkipped,
		"rows_skipped", result.RowsSkipped,
		"duration", result.Duration(),
	)
	if err != nil {
		log.Error("import aborted", "error", err, "code", result.ErrorCode)
	}
	return result, err
}

func (s *Service) run(ctx context.Context, path string, result *RunResult) error {
	log := logging.FromContext(ctx)

	det, err := s.detect(path)
	if err != nil {
		return err
	}
	result.Detection = det
	log.Info("encoding detected",
		"file", path,
		"charset", det.Charset,
		"language", det.Language,
		"confidence", det.Confidence,
		"forced", det.Forced,
	)
	if det.Unsupported != "" {
		log.Warn("detected charset has no decoder; reading as UTF-8",
			"detected", det.Unsupported,
			"charset", det.Charset,
		)
	}
	if !det.Forced && det.Confidence < s.opts.MinConfidence {
		log.Warn("low encoding confidence; text fields may be garbled, set INPUT_ENCODING to override",
			"charset", det.Charset,
			"confidence", det.Confidence,
			"min_confidence", s.opts.MinConfidence,
		)
	}

	r, err := roster.Open(path, roster.Options{
		Charset:   det.Charset,
		Delimiter: s.opts.Delimiter,
		Columns:   s.opts.Columns,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	header := r.Header()
	log.Info("header", "columns", header)
	if strings.ContainsRune(strings.Join(header, ""), utf8.RuneError) {
		log.Warn("header contains replacement characters; the detected encoding is probably wrong",
			"charset", det.Charset)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}

		var outcome RowOutcome
		var rowErr *roster.RowError
		switch {
		case errors.As(err, &rowErr):
			outcome, err = s.rowFailed(ctx, rowErr.Line, "", err)
		case err != nil:
			return err
		default:
			outcome, err = s.processRow(ctx, rec)
		}
		if err != nil {
			return err
		}

		result.tally(outcome)
		s.recordRow(ctx, result.RunID, outcome)
		fmt.Fprintln(s.out, rowSeparator)
	}
}

func (s *Service) detect(path string) (roster.Detection, error) {
	if s.opts.Encoding != "" {
		return roster.ForcedDetection(s.opts.Encoding), nil
	}
	return roster.DetectFile(path)
}

// processRow transforms and submits one record. A non-nil error ends the run.
func (s *Service) processRow(ctx context.Context, rec roster.Record) (RowOutcome, error) {
	log := logging.WithFields(ctx, "line", rec.Line)

	patient, err := s.opts.Transformer.BuildPatient(fhir.PatientFields{
		Name:      rec.Name,
		CPF:       rec.CPF,
		Gender:    rec.Gender,
		BirthDate: rec.BirthDate,
		Phone:     rec.Phone,
		Country:   rec.Country,
	})
	if err != nil {
		return s.rowFailed(ctx, rec.Line, rec.CPF, fmt.Errorf("line %d: %w", rec.Line, err))
	}
	log.Info("patient", "resource", jsonString(patient))

	outcome := RowOutcome{Line: rec.Line, CPF: rec.CPF, Observation: StatusNotReached}

	if s.opts.DryRun {
		outcome.Patient = StatusDryRun
		outcome.Observation = StatusSkipped
		if fhir.HasObservation(rec.Observation) {
			outcome.Observation = StatusDryRun
			log.Info("observation", "resource", jsonString(s.opts.Transformer.BuildObservation("{patient-id}", rec.Observation)))
		}
		log.Info("dry run: nothing submitted")
		return outcome, nil
	}

	sub, err := s.submitter.SubmitPatient(ctx, patient)
	if err != nil {
		return outcome, fmt.Errorf("line %d: submit patient: %w", rec.Line, err)
	}
	outcome.HTTPStatus = sub.StatusCode

	if !sub.Created {
		outcome.Patient = StatusFailed
		outcome.Message = sub.Body
		log.Error("failed to create patient", "status", sub.StatusCode, "response", sub.Body)
		return outcome, nil
	}

	outcome.Patient = StatusCreated
	outcome.PatientID = sub.ID
	log.Info("patient created", "patient_id", sub.ID)

	if !fhir.HasObservation(rec.Observation) {
		outcome.Observation = StatusSkipped
		log.Info("no observation provided, skipping observation")
		return outcome, nil
	}
	if sub.ID == "" {
		outcome.Message = "server returned no patient id"
		log.Warn("patient created without an id; cannot reference it from an observation")
		return outcome, nil
	}

	obs := s.opts.Transformer.BuildObservation(sub.ID, rec.Observation)
	obsSub, err := s.submitter.SubmitObservation(ctx, obs)
	if err != nil {
		return outcome, fmt.Errorf("line %d: submit observation: %w", rec.Line, err)
	}
	outcome.HTTPStatus = obsSub.StatusCode

	if !obsSub.Created {
		outcome.Observation = StatusFailed
		outcome.Message = obsSub.Body
		log.Error("failed to create observation", "status", obsSub.StatusCode, "response", obsSub.Body)
		return outcome, nil
	}

	outcome.Observation = StatusCreated
	log.Info("observation created", "observation_id", obsSub.ID)
	return outcome, nil
}

// rowFailed applies the row error policy to a row that could not be read
// or transformed.
func (s *Service) rowFailed(ctx context.Context, line int, cpf string, err error) (RowOutcome, error) {
	if s.opts.Policy != PolicySkip {
		return RowOutcome{}, err
	}

	logging.WithFields(ctx, "line", line).Warn("skipping row", "error", err)
	return RowOutcome{
		Line:        line,
		CPF:         cpf,
		Patient:     StatusSkipped,
		Observation: StatusNotReached,
		Message:     err.Error(),
	}, nil
}

func (s *Service) startHistory(ctx context.Context, run *RunResult) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HistoryTimeout)
	defer cancel()
	if err := s.history.StartRun(hctx, run); err != nil {
		logging.FromContext(ctx).Warn("history: failed to record run start", "error", err)
	}
}

func (s *Service) recordRow(ctx context.Context, runID string, row RowOutcome) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HistoryTimeout)
	defer cancel()
	if err := s.history.RecordRow(hctx, runID, row); err != nil {
		logging.FromContext(ctx).Warn("history: failed to record row", "line", row.Line, "error", err)
	}
}

func (s *Service) finishHistory(ctx context.Context, run *RunResult) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HistoryTimeout)
	defer cancel()
	if err := s.history.FinishRun(hctx, run); err != nil {
		logging.FromContext(ctx).Warn("history: failed to record run end", "error", err)
	}
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal resource for logging", "error", err)
		return ""
	}
	return string(data)
}
