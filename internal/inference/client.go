package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable signals that every model and API key combination was
// exhausted without a usable response. The master surfaces it as a graceful
// apology reply; the turn fails with the stack untouched.
var ErrUnavailable = errors.New("inference: all models and keys exhausted")

// ErrMalformed signals that the provider answered but the payload did not
// contain the expected content. Callers retry once before falling back.
var ErrMalformed = errors.New("inference: malformed response")

// Config holds the inference client configuration.
type Config struct {
	BaseURL           string        // generation endpoint base, default http://localhost:11434
	Models            []string      // primary first, fallbacks after
	APIKeys           []string      // rotated on per-key failures; may be empty for local backends
	Temperature       float64       // Default: 0.2
	Timeout           time.Duration // per-request timeout
	RequestsPerMinute int           // token-bucket budget over all calls
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "http://localhost:11434",
		Models:            []string{"gemma2:9b"},
		APIKeys:           nil,
		Temperature:       0.2,
		Timeout:           2 * time.Minute,
		RequestsPerMinute: 30,
	}
}

// Client sends prompts to the configured backend, trying the primary model
// first and falling back across models and keys. All calls are synchronous;
// the pipeline runs exactly one turn at a time.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:     logger,
	}
}

// generateRequest is the request body for the generation endpoint.
type generateRequest struct {
	Model       string         `json:"model"`
	Prompt      string         `json:"prompt"`
	Stream      bool           `json:"stream"`
	Temperature float64        `json:"temperature,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// generateResponse is the response body from the generation endpoint.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// SendPrompt sends one prompt and returns the raw text response. Every
// model is tried against every key, primary model and first key leading.
// When everything fails the distinguished ErrUnavailable is returned.
func (c *Client) SendPrompt(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	keys := c.config.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}

	var lastErr error
	for _, model := range c.config.Models {
		for i, key := range keys {
			text, err := c.sendOne(ctx, model, key, prompt)
			if err == nil {
				return text, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			c.logger.Warn("inference attempt failed",
				"model", model, "key_index", i, "error", err)
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return "", ErrUnavailable
}

// sendOne performs a single non-streaming generation call.
func (c *Client) sendOne(ctx context.Context, model, key, prompt string) (string, error) {
	req := generateRequest{
		Model:       model,
		Prompt:      prompt,
		Stream:      false,
		Temperature: c.config.Temperature,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if genResp.Response == "" {
		return "", ErrMalformed
	}

	return genResp.Response, nil
}
