package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"folio/internal/backend"
	"folio/internal/services"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultHTTPTimeout = 120 * time.Second
)

// Client wraps the Google Generative Language generateContent API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a Gemini API client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "api key required (set GEMINI_API_KEY or [gemini].api_key)", nil)
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Provider identifies the backend variant in records and ledger rows.
func (c *Client) Provider() string {
	return backend.ProviderGoogle
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string   `json:"finishReason"`
		AvgLogprobs  *float64 `json:"avgLogprobs"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Submit sends one page image plus the prompt and returns the transcription.
func (c *Client) Submit(ctx context.Context, image []byte, req backend.Request) (backend.Result, error) {
	var empty backend.Result
	if len(image) == 0 {
		return empty, services.Wrap(services.ErrPermanent, "gemini", "submit", "empty image", nil)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return empty, services.Wrap(services.ErrConfiguration, "gemini", "submit", "model required", nil)
	}

	payload := generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{Text: req.Prompt},
				{InlineData: &inlineData{
					MIMEType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}
	cfg := &generationConfig{MaxOutputTokens: req.MaxOutputTokens}
	if depth := strings.TrimSpace(req.ReasoningDepth); depth != "" {
		cfg.ThinkingConfig = &thinkingConfig{ThinkingLevel: depth}
	}
	payload.GenerationConfig = cfg

	parsed, err := c.sendOnce(ctx, model, payload)
	if err != nil {
		return empty, err
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return empty, services.Wrap(services.ErrContentPolicy, "gemini", "submit",
			fmt.Sprintf("prompt blocked: %s", parsed.PromptFeedback.BlockReason), nil)
	}
	if len(parsed.Candidates) == 0 {
		return empty, services.Wrap(services.ErrTransient, "gemini", "submit", "no candidates in response", nil)
	}

	candidate := parsed.Candidates[0]
	if strings.EqualFold(candidate.FinishReason, "SAFETY") ||
		strings.EqualFold(candidate.FinishReason, "PROHIBITED_CONTENT") {
		return empty, services.Wrap(services.ErrContentPolicy, "gemini", "submit",
			fmt.Sprintf("finish reason %s", candidate.FinishReason), nil)
	}

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}
	transcription := strings.TrimSpace(text.String())
	if backend.IsRefusal(transcription) {
		return empty, services.Wrap(services.ErrContentPolicy, "gemini", "submit", "model refused the image", nil)
	}
	if transcription == "" {
		transcription = backend.EmptyPagePlaceholder
	}

	return backend.Result{
		Text:       transcription,
		Confidence: candidate.AvgLogprobs,
		Model:      model,
		Provider:   backend.ProviderGoogle,
	}, nil
}

func (c *Client) sendOnce(ctx context.Context, model string, payload generateContentRequest) (*generateContentResponse, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "gemini", "submit", "encode body", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "gemini", "submit", "new request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Transport failures and client-side timeouts are retry-eligible.
		return nil, services.Wrap(services.ErrTransient, "gemini", "submit", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "gemini", "submit", "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := backend.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, backend.ClassifyHTTPStatus("gemini", &backend.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		})
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "gemini", "submit", "decode response", err)
	}
	if parsed.Error != nil {
		return nil, services.Wrap(services.ErrPermanent, "gemini", "submit",
			fmt.Sprintf("api error %d %s: %s", parsed.Error.Code, parsed.Error.Status, parsed.Error.Message), nil)
	}
	return &parsed, nil
}
