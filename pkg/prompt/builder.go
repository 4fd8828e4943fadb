package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"ghostwriter/pkg/contract"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/model"
)

// Builder assembles the request payloads for each generation step.
type Builder struct {
	mgr *Manager
}

func NewBuilder() (*Builder, error) {
	mgr, err := NewManager()
	if err != nil {
		return nil, err
	}
	return &Builder{mgr: mgr}, nil
}

// Caption builds the per-photo captioning request: the instruction
// text plus the photo bytes.
func (b *Builder) Caption(order *model.ManuscriptOrder, photo model.Photo, total int, persona model.Persona) ([]llm.Part, error) {
	text, err := b.mgr.Render("caption.tmpl", map[string]any{
		"Index":      photo.Index,
		"Total":      total,
		"PlaceName":  order.PlaceName,
		"Keywords":   order.SearchKeywords,
		"Directives": Derive(persona),
	})
	if err != nil {
		return nil, fmt.Errorf("caption prompt: %w", err)
	}
	parts := []llm.Part{llm.TextPart(text)}
	if len(photo.Data) > 0 {
		parts = append(parts, llm.ImagePart(photo.Data, photo.MIME))
	}
	return parts, nil
}

// Draft builds the full-manuscript request from the captions and the
// order's keyword and hashtag sets.
func (b *Builder) Draft(order *model.ManuscriptOrder, captions []model.CaptionItem, persona model.Persona, extra, revisionReason string) ([]llm.Part, error) {
	captionsJSON, err := json.MarshalIndent(captions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding captions: %w", err)
	}
	markers := make([]string, len(captions))
	for i := range captions {
		markers[i] = contract.MarkerFor(i + 1)
	}

	text, err := b.mgr.Render("draft.tmpl", map[string]any{
		"PlaceName":        order.PlaceName,
		"CaptionsJSON":     string(captionsJSON),
		"PhotoCount":       len(captions),
		"Markers":          markers,
		"BodyTarget":       contract.BodyTarget,
		"RequiredKeywords": order.RequiredKeywords,
		"EmphasisKeywords": order.EmphasisKeywords,
		"Hashtags":         order.Hashtags,
		"Directives":       Derive(persona),
		"ExtraInstruction": extra,
		"RevisionReason":   revisionReason,
	})
	if err != nil {
		return nil, fmt.Errorf("draft prompt: %w", err)
	}
	return []llm.Part{llm.TextPart(text)}, nil
}

// Correction builds the single corrective-rewrite request from the
// validation failures of the previous draft.
func (b *Builder) Correction(order *model.ManuscriptOrder, captions []model.CaptionItem, draft string, failures []string) ([]llm.Part, error) {
	captionsJSON, err := json.MarshalIndent(captions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding captions: %w", err)
	}
	text, err := b.mgr.Render("correction.tmpl", map[string]any{
		"PlaceName":        order.PlaceName,
		"CaptionsJSON":     string(captionsJSON),
		"Draft":            draft,
		"Failures":         failures,
		"RequiredKeywords": order.RequiredKeywords,
	})
	if err != nil {
		return nil, fmt.Errorf("correction prompt: %w", err)
	}
	return []llm.Part{llm.TextPart(text)}, nil
}

// ShortReview builds one short-review request. index and total mark
// the output's position in a multi-output batch.
func (b *Builder) ShortReview(order *model.ShortReviewOrder, persona model.Persona, extra string, index, total int) ([]llm.Part, error) {
	text, err := b.mgr.Render("short_review.tmpl", map[string]any{
		"PlaceName":        order.PlaceName,
		"MenuName":         order.MenuName,
		"RequiredKeywords": order.RequiredKeywords,
		"Exact":            order.LengthMode == model.LengthFixed,
		"TargetLength":     order.TargetLength,
		"MaxLength":        order.MaxLength,
		"Index":            index,
		"Total":            total,
		"Directives":       Derive(persona),
		"ExtraInstruction": extra,
	})
	if err != nil {
		return nil, fmt.Errorf("short-review prompt: %w", err)
	}
	return []llm.Part{llm.TextPart(text)}, nil
}

// ParseCaption decodes a captioning response, tolerating a fenced
// code block around the JSON, and normalizes the result.
func ParseCaption(text string, wantIndex int) (model.CaptionItem, error) {
	var item model.CaptionItem
	cleaned := cleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), &item); err != nil {
		return item, fmt.Errorf("caption response is not valid JSON: %w", err)
	}
	if item.Index == 0 {
		item.Index = wantIndex
	}
	item.Normalize()
	if len(item.Tags) < 3 {
		return item, fmt.Errorf("caption for photo %d has %d tags, need at least 3", wantIndex, len(item.Tags))
	}
	return item, nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
