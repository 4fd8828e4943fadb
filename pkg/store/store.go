// Package store persists jobs, artifacts and billing releases.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ghostwriter/pkg/db"
	"ghostwriter/pkg/model"
)

// OrderStore is the sqlite-backed job repository.
type OrderStore struct {
	db *db.DB
}

// NewOrderStore creates a store over an initialized database.
func NewOrderStore(db *db.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Close() error {
	return s.db.Close()
}

// Enqueue persists a new job in the pending state. A job arriving
// without an ID gets one assigned.
func (s *OrderStore) Enqueue(ctx context.Context, job *model.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	persona, err := json.Marshal(job.Persona)
	if err != nil {
		return fmt.Errorf("encoding persona: %w", err)
	}
	snapshot, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, order_id, output_type, mode, state, extra_instruction, revision_reason, persona, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OrderID, string(job.OutputType), string(job.Mode), string(model.StatePending),
		job.ExtraInstruction, job.RevisionReason, string(persona), string(snapshot))
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Claim atomically moves the oldest visible pending job to running
// and returns it, or nil when the queue is empty.
func (s *OrderStore) Claim(ctx context.Context) (*model.GenerationJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, output_type, mode, extra_instruction, revision_reason, persona, snapshot
		 FROM jobs
		 WHERE state = ? AND visible = 1
		 ORDER BY created_at
		 LIMIT 1`, string(model.StatePending))

	var job model.GenerationJob
	var outputType, mode, persona, snapshot string
	err := row.Scan(&job.ID, &job.OrderID, &outputType, &mode,
		&job.ExtraInstruction, &job.RevisionReason, &persona, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	job.OutputType = model.OutputType(outputType)
	job.Mode = model.Mode(mode)
	if err := json.Unmarshal([]byte(persona), &job.Persona); err != nil {
		return nil, fmt.Errorf("decoding persona for job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(snapshot), &job.Snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot for job %s: %w", job.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND state = ?`,
		string(model.StateRunning), job.ID, string(model.StatePending))
	if err != nil {
		return nil, fmt.Errorf("marking job %s running: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another worker won the claim between select and update.
		return nil, nil
	}
	return &job, nil
}

// SetState updates the job lifecycle state and attempt counter.
func (s *OrderStore) SetState(ctx context.Context, jobID string, state model.JobState, attempt int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, attempt = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(state), attempt, jobID)
	if err != nil {
		return fmt.Errorf("setting job %s state %s: %w", jobID, state, err)
	}
	return nil
}

// SetPhase records the advisory UI phase. Best effort: failures are
// logged, never propagated.
func (s *OrderStore) SetPhase(ctx context.Context, jobID string, phase model.Phase) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET phase = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(phase), jobID)
	if err != nil {
		slog.Debug("phase update failed", "job", jobID, "phase", phase, "error", err)
	}
}

// Visible reports whether the job is still wanted by its order. An
// unknown job is not visible.
func (s *OrderStore) Visible(ctx context.Context, jobID string) (bool, error) {
	var visible bool
	err := s.db.QueryRowContext(ctx,
		`SELECT visible FROM jobs WHERE id = ?`, jobID).Scan(&visible)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking visibility of job %s: %w", jobID, err)
	}
	return visible, nil
}

// Hide withdraws a job from the queue, as when its order is cancelled.
func (s *OrderStore) Hide(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET visible = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("hiding job %s: %w", jobID, err)
	}
	return nil
}

// SaveArtifact stores the final output and marks the job succeeded.
func (s *OrderStore) SaveArtifact(ctx context.Context, job *model.GenerationJob, artifact *model.Artifact) error {
	outputs, err := json.Marshal(artifact.Outputs)
	if err != nil {
		return fmt.Errorf("encoding outputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (job_id, order_id, text, outputs, forced_pass, validation_failures)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			text = excluded.text,
			outputs = excluded.outputs,
			forced_pass = excluded.forced_pass,
			validation_failures = excluded.validation_failures`,
		job.ID, job.OrderID, artifact.Text, string(outputs), artifact.ForcedPass, artifact.ValidationFailures)
	if err != nil {
		return fmt.Errorf("saving artifact for job %s: %w", job.ID, err)
	}
	return s.SetState(ctx, job.ID, model.StateSucceeded, 0)
}

// Artifact loads the stored output for a job, or nil when absent.
func (s *OrderStore) Artifact(ctx context.Context, jobID string) (*model.Artifact, error) {
	var a model.Artifact
	var outputs string
	err := s.db.QueryRowContext(ctx,
		`SELECT text, outputs, forced_pass, validation_failures FROM artifacts WHERE job_id = ?`,
		jobID).Scan(&a.Text, &outputs, &a.ForcedPass, &a.ValidationFailures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading artifact for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &a.Outputs); err != nil {
		return nil, fmt.Errorf("decoding outputs for job %s: %w", jobID, err)
	}
	return &a, nil
}

// MarkFailed records the terminal failure and its truncated reason.
func (s *OrderStore) MarkFailed(ctx context.Context, jobID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(model.StateFailed), reason, jobID)
	if err != nil {
		return fmt.Errorf("marking job %s failed: %w", jobID, err)
	}
	return nil
}

// ReleaseBilling refunds the order's charge exactly once. Repeat
// calls for the same order are no-ops.
func (s *OrderStore) ReleaseBilling(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO billing_releases (order_id) VALUES (?)`, orderID)
	if err != nil {
		return fmt.Errorf("releasing billing for order %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("billing released", "order", orderID)
	}
	return nil
}

// BillingReleased reports whether the order was already refunded.
func (s *OrderStore) BillingReleased(ctx context.Context, orderID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM billing_releases WHERE order_id = ?`, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
