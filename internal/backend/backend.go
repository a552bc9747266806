package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"folio/internal/services"
)

// Request carries the per-submission options a backend variant understands.
type Request struct {
	Prompt string
	// Model is the provider-facing model name, not the catalog key.
	Model string
	// ReasoningDepth is low, medium, or high. Providers without an
	// equivalent knob ignore it.
	ReasoningDepth  string
	MaxOutputTokens int
}

// Result is a successful transcription response.
type Result struct {
	Text string
	// Confidence is provider-reported and opaque; nil when the provider
	// does not supply one. Stored verbatim, never interpreted.
	Confidence *float64
	Model      string
	Provider   string
}

// Backend submits one page image plus prompt to a vision model and returns
// the transcription. Implementations make exactly one outbound call per
// Submit; retry is the caller's responsibility.
type Backend interface {
	Submit(ctx context.Context, image []byte, req Request) (Result, error)
	Provider() string
}

// HTTPStatusError is a non-2xx provider response before classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ClassifyHTTPStatus maps a provider HTTP failure onto the retry taxonomy:
// 408/429/5xx are transient (carrying any Retry-After hint), everything else
// in the 4xx range is permanent.
func ClassifyHTTPStatus(provider string, statusErr *HTTPStatusError) error {
	op := "submit"
	switch {
	case statusErr.StatusCode == http.StatusRequestTimeout,
		statusErr.StatusCode == http.StatusTooManyRequests,
		statusErr.StatusCode >= http.StatusInternalServerError:
		wrapped := services.Wrap(services.ErrTransient, provider, op, "", statusErr)
		if statusErr.RetryAfter > 0 {
			return &services.RetryAfterError{Err: wrapped, Delay: statusErr.RetryAfter}
		}
		return wrapped
	default:
		return services.Wrap(services.ErrPermanent, provider, op, "", statusErr)
	}
}

// ParseRetryAfter interprets a Retry-After header value as either seconds or
// an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := parseInt(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func parseInt(value string) (int, error) {
	var n int
	_, err := fmt.Sscanf(value, "%d", &n)
	return n, err
}

// refusalPhrases are checked case-insensitively against model output. A
// response that is only a refusal is treated as a content policy decline
// rather than a transcription.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// IsRefusal reports whether text reads as a model refusal instead of a
// transcription. Only short responses are scanned; a genuine transcription
// quoting one of these phrases should not be discarded.
func IsRefusal(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(trimmed) > 600 {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
