package runner

import (
	"testing"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/model"
)

func TestModelTableResolution(t *testing.T) {
	table := NewModelTable(config.LLMConfig{
		Models: map[string]string{
			"manuscript/quality":       "pro",
			"manuscript/quality/image": "pro-vision",
			"manuscript/speed":         "flash",
			"short_review/speed":       "flash",
		},
		Default: "fallback",
	})

	tests := []struct {
		out   model.OutputType
		mode  model.Mode
		image bool
		want  string
	}{
		{model.OutputManuscript, model.ModeQuality, true, "pro-vision"},
		{model.OutputManuscript, model.ModeQuality, false, "pro"},
		// No image entry for speed: the plain entry serves both.
		{model.OutputManuscript, model.ModeSpeed, true, "flash"},
		{model.OutputShortReview, model.ModeSpeed, false, "flash"},
		// Unconfigured combination falls back to the default.
		{model.OutputShortReview, model.ModeQuality, false, "fallback"},
	}
	for _, tc := range tests {
		if got := table.Resolve(tc.out, tc.mode, tc.image); got != tc.want {
			t.Errorf("Resolve(%s, %s, %v) = %q, want %q", tc.out, tc.mode, tc.image, got, tc.want)
		}
	}
}

func TestModelTableValidate(t *testing.T) {
	if err := NewModelTable(config.LLMConfig{Default: "flash"}).Validate(); err != nil {
		t.Errorf("table with default failed validation: %v", err)
	}
	if err := NewModelTable(config.LLMConfig{}).Validate(); err == nil {
		t.Error("empty table with no default passed validation")
	}
}

func TestModelTableModels(t *testing.T) {
	table := NewModelTable(config.LLMConfig{
		Models: map[string]string{
			"manuscript/quality": "pro",
			"manuscript/speed":   "flash",
			"short_review/speed": "flash",
		},
		Default: "flash",
	})
	models := table.Models()
	if len(models) != 2 {
		t.Errorf("Models() = %v, want the two distinct identifiers", models)
	}
}
