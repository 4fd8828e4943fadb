package gemini

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"ghostwriter/pkg/llm"
)

func TestClassifyError(t *testing.T) {
	err := classifyError(genai.APIError{Code: 429, Message: "quota exceeded"})
	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("classifyError returned %T, want *llm.StatusError", err)
	}
	if se.Code != 429 {
		t.Errorf("code = %d, want 429", se.Code)
	}
	if !llm.IsThrottle(err) {
		t.Error("429 not recognized as throttle")
	}

	plain := fmt.Errorf("connection reset")
	if got := classifyError(plain); got != plain {
		t.Errorf("non-API error rewritten: %v", got)
	}
}

func TestClassifyErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", genai.APIError{Code: 503, Message: "overloaded"})
	if !llm.IsOverload(classifyError(wrapped)) {
		t.Error("wrapped 503 not recognized as overload")
	}
}

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"no wrap needed", "short line", 80, "short line"},
		{"zero width passthrough", "anything goes", 0, "anything goes"},
		{"wraps at width", "aaa bbb ccc", 7, "aaa bbb\nccc"},
		{"preserves existing newlines", "one\ntwo", 80, "one\ntwo"},
	}
	for _, tt := range tests {
		if got := wordWrap(tt.input, tt.width); got != tt.want {
			t.Errorf("%s: wordWrap(%q, %d) = %q, want %q", tt.name, tt.input, tt.width, got, tt.want)
		}
	}
}

func TestWordWrapLongLine(t *testing.T) {
	out := wordWrap(strings.Repeat("word ", 40), 20)
	for i, line := range strings.Split(out, "\n") {
		if len(line) > 20 {
			t.Errorf("line %d exceeds width: %q", i, line)
		}
	}
}
