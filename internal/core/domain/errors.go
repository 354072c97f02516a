package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrConfiguration        = errors.New("configuration error")
	ErrTemporary            = errors.New("temporary failure")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrUnsupportedFormat    = errors.New("unsupported document format")
	ErrDocumentTooLarge     = errors.New("document too large")
	ErrRateLimited          = errors.New("rate limited")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// DetailedError carries a message that is safe to show to end users.
type DetailedError struct {
	Kind    error
	Message string
	Err     error
}

func (e *DetailedError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *DetailedError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// UserMessage returns the end-user message of err, or fallback when err
// carries none.
func UserMessage(err error, fallback string) string {
	var detailed *DetailedError
	if errors.As(err, &detailed) && detailed.Message != "" {
		return detailed.Message
	}
	return fallback
}
