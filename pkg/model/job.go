package model

import "strings"

// JobState is the lifecycle state of a generation job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateRetrying  JobState = "retrying"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// Phase is the advisory progress tag surfaced to the ordering UI.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseGenerating Phase = "generating"
	PhaseRetrying   Phase = "retrying"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// GenerationJob is the unit of work handed to the runner.
// It is immutable once dispatched; one active job per order.
type GenerationJob struct {
	ID               string
	OrderID          string
	OutputType       OutputType
	Mode             Mode
	ExtraInstruction string
	RevisionReason   string
	Persona          Persona
	Snapshot         OrderSnapshot
}

// HasImage reports whether any generation step for this job carries image parts.
func (j *GenerationJob) HasImage() bool {
	switch j.Snapshot.Kind {
	case SnapshotManuscript:
		return len(j.Snapshot.Manuscript.Photos) > 0
	case SnapshotShortReview:
		return j.Snapshot.ShortReview.Photo != nil
	}
	return false
}

// CaptionItem is the structured description of one photo.
type CaptionItem struct {
	Index   int      `json:"index"`
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
	OCR     []string `json:"ocr"`
}

// Normalize clamps a caption to its contract: 3..6 deduplicated tags
// and at most 10 OCR snippets. Tags beyond the cap are dropped in order.
func (c *CaptionItem) Normalize() {
	seen := make(map[string]bool, len(c.Tags))
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, t)
		if len(tags) == 6 {
			break
		}
	}
	c.Tags = tags
	if len(c.OCR) > 10 {
		c.OCR = c.OCR[:10]
	}
}

// Artifact is the final output of a generation job.
type Artifact struct {
	Text               string   // manuscript text, or empty for short reviews
	Outputs            []string // short-review outputs, one per requested count
	ForcedPass         bool     // manuscript accepted despite residual validation failures
	ValidationFailures int      // failure count at acceptance, for observability
}

// TruncateReason flattens an error message into a single line of at
// most max runes, safe to persist as the job failure reason.
func TruncateReason(msg string, max int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max])
}
