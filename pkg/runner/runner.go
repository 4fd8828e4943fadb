// Package runner executes generation jobs: claiming them from the
// store, driving the caption/draft/correction pipeline, and settling
// terminal state including the one-shot billing release on failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/contract"
	"ghostwriter/pkg/generation"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/model"
	"ghostwriter/pkg/prompt"
)

// failureReasonMax bounds the persisted failure reason, in runes.
const failureReasonMax = 200

// perOutputAttempts bounds the in-loop generate+enforce retries for
// one short-review output before its hard failure becomes terminal.
const perOutputAttempts = 2

// JobStore is the slice of the store the runner depends on.
type JobStore interface {
	Claim(ctx context.Context) (*model.GenerationJob, error)
	SetState(ctx context.Context, jobID string, state model.JobState, attempt int) error
	SetPhase(ctx context.Context, jobID string, phase model.Phase)
	Visible(ctx context.Context, jobID string) (bool, error)
	SaveArtifact(ctx context.Context, job *model.GenerationJob, artifact *model.Artifact) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	ReleaseBilling(ctx context.Context, orderID string) error
}

// Generator is the per-call generation client.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req generation.Request) (*generation.Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	return f(ctx, req)
}

// termError marks a failure job-level retries cannot fix.
type termError struct {
	err error
}

func (e *termError) Error() string { return e.err.Error() }
func (e *termError) Unwrap() error { return e.err }

func terminal(err error) error {
	return &termError{err: err}
}

func isTerminal(err error) bool {
	var te *termError
	return errors.As(err, &te)
}

// Runner drives one job at a time through its generation pipeline.
type Runner struct {
	gen     Generator
	builder *prompt.Builder
	models  *ModelTable
	cfg     config.RunnerConfig
}

func New(gen Generator, builder *prompt.Builder, models *ModelTable, cfg config.RunnerConfig) *Runner {
	return &Runner{gen: gen, builder: builder, models: models, cfg: cfg}
}

// Run executes a claimed job to a terminal state. The pipeline is
// retried whole up to the configured job attempts with the fixed
// backoff sequence; a terminal failure marks the job failed and
// releases the order's billing exactly once.
func (r *Runner) Run(ctx context.Context, store JobStore, job *model.GenerationJob) error {
	log := slog.With("job", job.ID, "order", job.OrderID, "type", job.OutputType)

	if !r.recheckVisible(ctx, store, job.ID) {
		log.Info("job no longer visible, abandoning")
		return store.MarkFailed(settleCtx(ctx), job.ID, "order no longer active")
	}

	attempts := r.cfg.JobRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := store.SetState(ctx, job.ID, model.StateRunning, attempt); err != nil {
			log.Warn("state update failed", "error", err)
		}

		artifact, err := r.execute(ctx, store, job)
		if err == nil {
			if err := store.SaveArtifact(ctx, job, artifact); err != nil {
				return fmt.Errorf("persisting artifact for job %s: %w", job.ID, err)
			}
			store.SetPhase(ctx, job.ID, model.PhaseDone)
			log.Info("job succeeded", "attempt", attempt, "forced_pass", artifact.ForcedPass)
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || isTerminal(err) {
			break
		}
		log.Warn("job attempt failed", "attempt", attempt, "error", err)

		if attempt < attempts {
			if err := store.SetState(ctx, job.ID, model.StateRetrying, attempt); err != nil {
				log.Warn("state update failed", "error", err)
			}
			if !sleepCtx(ctx, r.retryDelay(attempt)) {
				lastErr = ctx.Err()
				break
			}
		}
	}

	reason := model.TruncateReason(lastErr.Error(), failureReasonMax)
	sctx := settleCtx(ctx)
	if err := store.MarkFailed(sctx, job.ID, reason); err != nil {
		log.Error("failed to persist failure", "error", err)
	}
	if err := store.ReleaseBilling(sctx, job.OrderID); err != nil {
		log.Error("billing release failed", "error", err)
	}
	store.SetPhase(sctx, job.ID, model.PhaseFailed)
	log.Error("job failed", "reason", reason)
	return lastErr
}

// recheckVisible probes the job's visibility a bounded number of
// times. Dispatch can race the ordering side's own commit, so a
// not-yet-visible job gets a short grace period.
func (r *Runner) recheckVisible(ctx context.Context, store JobStore, jobID string) bool {
	probes := r.cfg.RecheckProbes
	if probes < 1 {
		probes = 1
	}
	for i := 0; i < probes; i++ {
		visible, err := store.Visible(ctx, jobID)
		if err != nil {
			slog.Warn("visibility probe failed", "job", jobID, "error", err)
		} else if visible {
			return true
		}
		if i < probes-1 && !sleepCtx(ctx, r.cfg.RecheckWait.Std()) {
			return false
		}
	}
	return false
}

// retryDelay returns the fixed backoff for the given 1-based attempt.
// The last configured delay repeats if attempts outnumber entries.
func (r *Runner) retryDelay(attempt int) time.Duration {
	seq := r.cfg.RetryBackoff
	if len(seq) == 0 {
		return time.Second
	}
	if attempt > len(seq) {
		attempt = len(seq)
	}
	return seq[attempt-1].Std()
}

func (r *Runner) execute(ctx context.Context, store JobStore, job *model.GenerationJob) (*model.Artifact, error) {
	sink := func(jobID string, phase model.Phase, attempt int) {
		store.SetPhase(ctx, jobID, phase)
	}

	switch job.Snapshot.Kind {
	case model.SnapshotManuscript:
		return r.runManuscript(ctx, job, sink)
	case model.SnapshotShortReview:
		return r.runShortReview(ctx, job, sink)
	default:
		return nil, terminal(fmt.Errorf("job %s has unknown snapshot kind %d", job.ID, job.Snapshot.Kind))
	}
}

func (r *Runner) runManuscript(ctx context.Context, job *model.GenerationJob, sink generation.StatusSink) (*model.Artifact, error) {
	order := job.Snapshot.Manuscript

	captions, err := r.captionPhotos(ctx, job, order, sink)
	if err != nil {
		return nil, err
	}

	cin := &contract.ManuscriptInput{
		PlaceName:        order.PlaceName,
		Address:          order.Address,
		Captions:         captions,
		RequiredKeywords: order.RequiredKeywords,
		EmphasisKeywords: order.EmphasisKeywords,
		Hashtags:         order.Hashtags,
		IncludeLink:      order.IncludeLink,
		IncludeMap:       order.IncludeMap,
		LinkURL:          order.LinkURL,
	}

	draft, err := r.generateDraft(ctx, job, order, captions, sink)
	if err != nil {
		return nil, err
	}

	artifact := contract.RepairManuscript(draft, cin)
	result := contract.ValidateManuscript(artifact, cin)
	if !result.OK {
		slog.Info("draft failed validation, requesting correction",
			"job", job.ID, "failures", len(result.Failures))
		corrected, err := r.generateCorrection(ctx, job, order, captions, artifact, result.Failures, sink)
		if err != nil {
			return nil, err
		}
		artifact = contract.RepairManuscript(corrected, cin)
		result = contract.ValidateManuscript(artifact, cin)
	}

	// Validation is advisory for manuscripts: the repaired text ships
	// either way, with the residual failure count recorded.
	return &model.Artifact{
		Text:               artifact,
		ForcedPass:         !result.OK,
		ValidationFailures: len(result.Failures),
	}, nil
}

func (r *Runner) captionPhotos(ctx context.Context, job *model.GenerationJob, order *model.ManuscriptOrder, sink generation.StatusSink) ([]model.CaptionItem, error) {
	captions := make([]model.CaptionItem, 0, len(order.Photos))
	captionModel := r.models.Resolve(job.OutputType, job.Mode, true)

	for _, photo := range order.Photos {
		parts, err := r.builder.Caption(order, photo, len(order.Photos), job.Persona)
		if err != nil {
			return nil, terminal(err)
		}
		res, err := r.gen.Generate(ctx, generation.Request{
			JobID: job.ID,
			Model: captionModel,
			Parts: parts,
			Sink:  sink,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("captioning photo %d: %w", photo.Index, err))
		}
		item, err := prompt.ParseCaption(res.Text, photo.Index)
		if err != nil {
			// Malformed caption JSON is worth a fresh pipeline run.
			return nil, fmt.Errorf("photo %d: %w", photo.Index, err)
		}
		captions = append(captions, item)
	}
	return captions, nil
}

func (r *Runner) generateDraft(ctx context.Context, job *model.GenerationJob, order *model.ManuscriptOrder, captions []model.CaptionItem, sink generation.StatusSink) (string, error) {
	parts, err := r.builder.Draft(order, captions, job.Persona, job.ExtraInstruction, job.RevisionReason)
	if err != nil {
		return "", terminal(err)
	}
	res, err := r.gen.Generate(ctx, generation.Request{
		JobID: job.ID,
		Model: r.models.Resolve(job.OutputType, job.Mode, false),
		Parts: parts,
		Sink:  sink,
	})
	if err != nil {
		return "", classify(fmt.Errorf("drafting: %w", err))
	}
	return res.Text, nil
}

func (r *Runner) generateCorrection(ctx context.Context, job *model.GenerationJob, order *model.ManuscriptOrder, captions []model.CaptionItem, draft string, failures []string, sink generation.StatusSink) (string, error) {
	parts, err := r.builder.Correction(order, captions, draft, failures)
	if err != nil {
		return "", terminal(err)
	}
	res, err := r.gen.Generate(ctx, generation.Request{
		JobID: job.ID,
		Model: r.models.Resolve(job.OutputType, job.Mode, false),
		Parts: parts,
		Sink:  sink,
	})
	if err != nil {
		return "", classify(fmt.Errorf("correcting: %w", err))
	}
	return res.Text, nil
}

func (r *Runner) runShortReview(ctx context.Context, job *model.GenerationJob, sink generation.StatusSink) (*model.Artifact, error) {
	order := job.Snapshot.ShortReview
	srin := &contract.ShortReviewInput{
		PlaceName:        order.PlaceName,
		MenuName:         order.MenuName,
		RequiredKeywords: order.RequiredKeywords,
		Mode:             order.LengthMode,
		TargetLength:     order.TargetLength,
		MaxLength:        order.MaxLength,
		AllowEmoji:       order.AllowEmoji,
	}
	reviewModel := r.models.Resolve(job.OutputType, job.Mode, order.Photo != nil)

	outputs := make([]string, 0, order.OutputCount)
	for i := 1; i <= order.OutputCount; i++ {
		text, err := r.generateOneReview(ctx, job, order, srin, reviewModel, i, sink)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, text)
	}
	return &model.Artifact{Outputs: outputs}, nil
}

func (r *Runner) generateOneReview(ctx context.Context, job *model.GenerationJob, order *model.ShortReviewOrder, srin *contract.ShortReviewInput, reviewModel string, index int, sink generation.StatusSink) (string, error) {
	var lastFailures []string
	for attempt := 1; attempt <= perOutputAttempts; attempt++ {
		parts, err := r.builder.ShortReview(order, job.Persona, job.ExtraInstruction, index, order.OutputCount)
		if err != nil {
			return "", terminal(err)
		}
		if order.Photo != nil && len(order.Photo.Data) > 0 {
			parts = append(parts, llm.ImagePart(order.Photo.Data, order.Photo.MIME))
		}
		res, err := r.gen.Generate(ctx, generation.Request{
			JobID: job.ID,
			Model: reviewModel,
			Parts: parts,
			Sink:  sink,
		})
		if err != nil {
			return "", classify(fmt.Errorf("short review %d/%d: %w", index, order.OutputCount, err))
		}

		text := contract.EnforceShortReview(res.Text, srin)
		result := contract.ValidateShortReview(text, srin)
		if result.OK {
			return text, nil
		}
		lastFailures = result.Failures
		slog.Warn("short review failed hard checks",
			"job", job.ID, "output", index, "attempt", attempt, "failures", result.Failures)
	}
	// Hard checks are a gate for short reviews; retrying the whole
	// pipeline would not change the contract inputs.
	return "", terminal(fmt.Errorf("short review %d/%d failed hard checks: %v", index, order.OutputCount, lastFailures))
}

// classify decides whether a generation error deserves a fresh
// pipeline run. Terminal provider statuses stay terminal.
func classify(err error) error {
	if llm.IsRetryable(err) {
		return err
	}
	return terminal(err)
}

// settleCtx lets terminal bookkeeping run even when the job context
// is already cancelled, as during shutdown.
func settleCtx(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
