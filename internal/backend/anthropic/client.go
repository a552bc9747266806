package anthropic

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
	defaultBaseURL     = "https://api.anthropic.com"
	apiVersion         = "2023-06-01"
	defaultHTTPTimeout = 120 * time.Second
)

// Client wraps the Anthropic Messages API.
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

// NewClient constructs an Anthropic API client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "anthropic", "new client", "api key required (set ANTHROPIC_API_KEY or [anthropic].api_key)", nil)
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
	return backend.ProviderAnthropic
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Thinking  *thinking `json:"thinking,omitempty"`
	Messages  []message `json:"messages"`
}

type thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// thinkingBudgets maps reasoning depth onto extended-thinking token budgets.
// Low depth disables extended thinking entirely.
var thinkingBudgets = map[string]int{
	"medium": 4096,
	"high":   16384,
}

// Submit sends one page image plus the prompt and returns the transcription.
func (c *Client) Submit(ctx context.Context, image []byte, req backend.Request) (backend.Result, error) {
	var empty backend.Result
	if len(image) == 0 {
		return empty, services.Wrap(services.ErrPermanent, "anthropic", "submit", "empty image", nil)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return empty, services.Wrap(services.ErrConfiguration, "anthropic", "submit", "model required", nil)
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	payload := messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: "image/png",
						Data:      base64.StdEncoding.EncodeToString(image),
					},
				},
				{Type: "text", Text: req.Prompt},
			},
		}},
	}
	if budget, ok := thinkingBudgets[strings.ToLower(strings.TrimSpace(req.ReasoningDepth))]; ok {
		payload.Thinking = &thinking{Type: "enabled", BudgetTokens: budget}
		// The API requires max_tokens strictly greater than the thinking
		// budget. The configured output allowance rides on top of it.
		if payload.MaxTokens <= budget {
			payload.MaxTokens = budget + maxTokens
		}
	}

	parsed, err := c.sendOnce(ctx, payload)
	if err != nil {
		return empty, err
	}

	if strings.EqualFold(parsed.StopReason, "refusal") {
		return empty, services.Wrap(services.ErrContentPolicy, "anthropic", "submit", "model refused the image", nil)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	transcription := strings.TrimSpace(text.String())
	if backend.IsRefusal(transcription) {
		return empty, services.Wrap(services.ErrContentPolicy, "anthropic", "submit", "model refused the image", nil)
	}
	if transcription == "" {
		transcription = backend.EmptyPagePlaceholder
	}

	responseModel := strings.TrimSpace(parsed.Model)
	if responseModel == "" {
		responseModel = model
	}
	// The Messages API reports no confidence value.
	return backend.Result{
		Text:     transcription,
		Model:    responseModel,
		Provider: backend.ProviderAnthropic,
	}, nil
}

func (c *Client) sendOnce(ctx context.Context, payload messagesRequest) (*messagesResponse, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "anthropic", "submit", "encode body", err)
	}

	endpoint := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "anthropic", "submit", "new request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "anthropic", "submit", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "anthropic", "submit", "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := backend.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, backend.ClassifyHTTPStatus("anthropic", &backend.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		})
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "anthropic", "submit", "decode response", err)
	}
	if parsed.Error != nil {
		return nil, services.Wrap(services.ErrPermanent, "anthropic", "submit",
			fmt.Sprintf("api error %s: %s", parsed.Error.Type, parsed.Error.Message), nil)
	}
	return &parsed, nil
}
