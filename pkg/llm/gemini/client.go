// Package gemini implements llm.Provider on Google Gemini via the
// genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/tracker"
)

// providerName labels this provider in logs and usage tracking.
const providerName = "gemini"

// Client implements llm.Provider for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	apiKey      string
	tracker     *tracker.Tracker
	historyPath string

	mu sync.RWMutex
}

// Options configures the client.
type Options struct {
	APIKey      string
	HistoryPath string // transcript log path; empty disables
}

// NewClient creates a new Gemini client.
func NewClient(opts Options, t *tracker.Tracker) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		genaiClient: client,
		apiKey:      opts.APIKey,
		tracker:     t,
		historyPath: opts.HistoryPath,
	}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string {
	return providerName
}

// Generate implements llm.Provider. Provider failures come back as
// *llm.StatusError with the numeric status attached; a 2xx response
// without text yields llm.ErrEmptyText.
func (c *Client) Generate(ctx context.Context, model string, parts []llm.Part) (string, error) {
	c.mu.RLock()
	client := c.genaiClient
	c.mu.RUnlock()

	if client == nil {
		return "", fmt.Errorf("gemini client not configured")
	}

	genaiParts := make([]*genai.Part, 0, len(parts))
	var promptText strings.Builder
	for _, p := range parts {
		if len(p.ImageData) > 0 {
			genaiParts = append(genaiParts, genai.NewPartFromBytes(p.ImageData, p.MIME))
			continue
		}
		genaiParts = append(genaiParts, genai.NewPartFromText(p.Text))
		promptText.WriteString(p.Text)
	}
	contents := []*genai.Content{genai.NewContentFromParts(genaiParts, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		classified := classifyError(err)
		c.logHistory(model, promptText.String(), fmt.Sprintf("ERROR: %v", classified))
		c.trackError(classified)
		return "", classified
	}

	text, err := responseText(resp)
	if err != nil {
		c.logHistory(model, promptText.String(), fmt.Sprintf("EMPTY: %v", err))
		if c.tracker != nil {
			c.tracker.TrackEmptyText(providerName)
		}
		return "", err
	}

	c.logHistory(model, promptText.String(), text)
	if c.tracker != nil {
		c.tracker.TrackSuccess(providerName)
	}
	return text, nil
}

// HealthCheck implements llm.Provider.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	client := c.genaiClient
	c.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("gemini client not configured")
	}
	_, err := client.Models.List(ctx, nil)
	return err
}

// Close cleans up resources.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genaiClient = nil
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewStatusError(apiErr.Code, apiErr.Message)
	}
	return err
}

func (c *Client) trackError(err error) {
	if c.tracker == nil {
		return
	}
	switch {
	case llm.IsThrottle(err):
		c.tracker.TrackThrottle(providerName)
	case llm.IsOverload(err):
		c.tracker.TrackOverload(providerName)
	case errors.Is(err, context.DeadlineExceeded):
		c.tracker.TrackTimeout(providerName)
	default:
		c.tracker.TrackFailure(providerName)
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", llm.ErrEmptyText
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", llm.ErrEmptyText
	}
	return sb.String(), nil
}

// ValidateModels checks that each configured model is available for the
// API key. Failures are logged but not fatal: if the key or model is
// truly invalid, generation calls will fail with a classified error.
func (c *Client) ValidateModels(ctx context.Context, models []string) {
	c.mu.RLock()
	client := c.genaiClient
	c.mu.RUnlock()
	if client == nil {
		return
	}

	var missing []string
	for _, m := range models {
		name := m
		if !strings.HasPrefix(name, "models/") {
			name = "models/" + name
		}
		if _, err := client.Models.Get(ctx, name, nil); err != nil {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		slog.Debug("Gemini model validation success", "models", models)
		return
	}

	slog.Warn("Gemini model validation failed, fetching available models...", "missing", missing)

	iter, err := client.Models.List(ctx, nil)
	if err != nil {
		slog.Warn("Failed to list models", "error", err)
		return
	}
	var available []string
	for {
		m, nextErr := iter.Next(ctx)
		if nextErr == iterator.Done {
			break
		}
		if nextErr != nil {
			break
		}
		if strings.Contains(strings.ToLower(m.Name), "gemini") {
			available = append(available, m.Name)
		}
	}
	slog.Error("Configured models not found", "missing", missing, "available", available)
}

// logHistory appends a prompt/response transcript entry.
func (c *Client) logHistory(model, prompt, response string) {
	if c.historyPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.historyPath), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	entry := fmt.Sprintf("[%s] MODEL: %s\nPROMPT:\n%s\n\nRESPONSE:\n%s\n%s\n",
		timestamp, model, prompt, wordWrap(response, 80), strings.Repeat("-", 80))
	_, _ = f.WriteString(entry)
}

func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLineLength := 0
		for j, word := range words {
			if j > 0 {
				if currentLineLength+len(word)+1 > width {
					result.WriteString("\n")
					currentLineLength = 0
				} else {
					result.WriteString(" ")
					currentLineLength++
				}
			}
			result.WriteString(word)
			currentLineLength += len(word)
		}
	}
	return result.String()
}
