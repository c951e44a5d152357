package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Generator produces a text completion for a prompt. The pipeline is
// the only caller, always immediately after acquiring the shared
// admission controller.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrUpstreamUnavailable is returned without spending quota while the
// breaker is open.
var ErrUpstreamUnavailable = errors.New("genai: upstream unavailable")

// GenerationError reports an upstream completion failure. Pipeline
// stages convert it into a degraded result instead of aborting the
// workflow.
type GenerationError struct {
	Model  string
	Status int // HTTP status when the upstream answered, 0 otherwise
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("genai: %s returned %d: %v", e.Model, e.Status, e.Err)
	}
	if e.Model == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("genai: %s: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SafetySetting is passed through to the upstream service unmodified.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// DefaultSafetySettings disables content blocking for the categories
// that routinely trip on clinical text.
func DefaultSafetySettings() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, SafetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return settings
}

// ClientConfig holds connection and generation parameters.
type ClientConfig struct {
	BaseURL         string // upstream API root; defaults to the hosted endpoint
	Model           string
	APIKey          string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	SafetySettings  []SafetySetting
	Timeout         time.Duration
	BreakerFailures int           // consecutive failures before tripping
	BreakerCooldown time.Duration // open-state duration before a probe
	Logger          *slog.Logger
}

// Client calls the hosted generateContent endpoint over HTTP. A
// circuit breaker fails calls fast after repeated upstream failures so
// a dead endpoint does not keep burning the shared quota window.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	breaker    *breaker
	logger     *slog.Logger
}

// NewClient creates a client with defaults filled in for any zero
// config fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.SafetySettings == nil {
		cfg.SafetySettings = DefaultSafetySettings()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		logger:     cfg.Logger,
	}
}

// BreakerState returns the current upstream circuit state.
func (c *Client) BreakerState() BreakerState { return c.breaker.current() }

// Ready reports whether Generate would be let through to upstream.
// It returns false only while the circuit is open and still cooling
// down, so callers holding scarce resources can bail out early.
func (c *Client) Ready() bool { return c.breaker.ready() }

// wire types for the generateContent request/response

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error"`
}

// Generate sends one prompt upstream and returns the completion text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.breaker.allow() {
		return "", &GenerationError{Model: c.cfg.Model, Err: ErrUpstreamUnavailable}
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			TopK:            c.cfg.TopK,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
		SafetySettings: c.cfg.SafetySettings,
	})
	if err != nil {
		return "", &GenerationError{Model: c.cfg.Model, Err: err}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(c.cfg.BaseURL, "/"),
		strings.TrimPrefix(c.cfg.Model, "models/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Model: c.cfg.Model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return "", &GenerationError{Model: c.cfg.Model, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.recordFailure()
		return "", &GenerationError{Model: c.cfg.Model, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.breaker.recordFailure()
		return "", &GenerationError{
			Model:  c.cfg.Model,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.breaker.recordFailure()
		return "", &GenerationError{Model: c.cfg.Model, Status: resp.StatusCode, Err: err}
	}
	if out.Error != nil {
		c.breaker.recordFailure()
		return "", &GenerationError{
			Model:  c.cfg.Model,
			Status: out.Error.Code,
			Err:    errors.New(out.Error.Message),
		}
	}
	if len(out.Candidates) == 0 {
		c.breaker.recordFailure()
		return "", &GenerationError{Model: c.cfg.Model, Err: errors.New("no candidates returned")}
	}

	c.breaker.recordSuccess()

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())

	c.logger.Debug("completion received",
		"model", c.cfg.Model,
		"latency_ms", time.Since(start).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}
