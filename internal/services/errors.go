package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransient marks failures that are safe to retry: rate limits,
	// timeouts, 5xx responses, dropped connections.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that must not be retried: malformed
	// requests, authentication problems, unsupported content.
	ErrPermanent = errors.New("permanent failure")
	// ErrContentPolicy marks a backend declining to process an image.
	ErrContentPolicy = errors.New("content policy refusal")
	// ErrDocumentRead marks a source PDF that is missing, corrupt, or does
	// not contain a requested page. Fatal for that document only.
	ErrDocumentRead = errors.New("document read error")
	// ErrLedgerCorrupt marks an untrustworthy ledger database. Fatal for the
	// whole run; requires operator intervention.
	ErrLedgerCorrupt = errors.New("ledger corrupt")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err is retry-eligible.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsContentPolicy reports whether the backend refused the image.
func IsContentPolicy(err error) bool {
	return errors.Is(err, ErrContentPolicy)
}

// IsDocumentRead reports whether err is a source document failure.
func IsDocumentRead(err error) bool {
	return errors.Is(err, ErrDocumentRead)
}

// IsFatal reports whether err must terminate the run rather than degrade to a
// per-page failure record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLedgerCorrupt) || errors.Is(err, ErrConfiguration)
}

// RetryAfterError carries a provider-supplied retry hint alongside a
// transient failure so the retry policy can honour it.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.Delay)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfterHint extracts a provider retry delay from err if one is present.
func RetryAfterHint(err error) (time.Duration, bool) {
	var hint *RetryAfterError
	if errors.As(err, &hint) && hint.Delay > 0 {
		return hint.Delay, true
	}
	return 0, false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
