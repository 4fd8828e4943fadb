package runner

import (
	"fmt"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/model"
)

// ModelTable resolves which provider model serves a generation step.
// Resolution is an explicit lookup on (output type, mode, image), with
// the image-specific entry preferred when the step carries a photo.
type ModelTable struct {
	models   map[string]string
	fallback string
}

// NewModelTable builds the table from configuration.
func NewModelTable(cfg config.LLMConfig) *ModelTable {
	return &ModelTable{models: cfg.Models, fallback: cfg.Default}
}

// Resolve returns the model for a step. Lookup order: the image
// variant when image is set, then the plain (type, mode) entry, then
// the configured default.
func (t *ModelTable) Resolve(out model.OutputType, mode model.Mode, image bool) string {
	key := fmt.Sprintf("%s/%s", out, mode)
	if image {
		if m, ok := t.models[key+"/image"]; ok && m != "" {
			return m
		}
	}
	if m, ok := t.models[key]; ok && m != "" {
		return m
	}
	return t.fallback
}

// Validate ensures every (type, mode) combination resolves to some
// model, so a misconfigured table fails at startup instead of at the
// first order of an unusual kind.
func (t *ModelTable) Validate() error {
	for _, out := range []model.OutputType{model.OutputManuscript, model.OutputShortReview} {
		for _, mode := range []model.Mode{model.ModeSpeed, model.ModeQuality} {
			for _, image := range []bool{false, true} {
				if t.Resolve(out, mode, image) == "" {
					return fmt.Errorf("no model configured for %s/%s (image=%v) and no default", out, mode, image)
				}
			}
		}
	}
	return nil
}

// Models returns the distinct model identifiers the table can
// resolve to, for startup validation against the provider.
func (t *ModelTable) Models() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range t.models {
		add(m)
	}
	add(t.fallback)
	return out
}
