package llm

import "context"

// Part is one ordered piece of request content: text, or an inline
// image with its mime type.
type Part struct {
	Text      string
	ImageData []byte
	MIME      string
}

// TextPart builds a text part.
func TextPart(s string) Part {
	return Part{Text: s}
}

// ImagePart builds an inline image part.
func ImagePart(data []byte, mime string) Part {
	return Part{ImageData: data, MIME: mime}
}

// Provider is a single-shot client for the generative-content API.
// Implementations return the generated text or a classified error;
// retry, admission control and telemetry live above this interface.
type Provider interface {
	// Name identifies the provider in logs and usage tracking.
	Name() string

	// Generate sends the ordered parts to the named model and returns
	// the generated text.
	Generate(ctx context.Context, model string, parts []Part) (string, error)

	// HealthCheck verifies the provider is configured and reachable.
	HealthCheck(ctx context.Context) error
}
