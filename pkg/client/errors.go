package client

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrDeckNotFound is returned when the remote does not know the deck id.
	ErrDeckNotFound = errors.New("deck not found")

	// ErrMalformedResponse is returned when a successful response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrPageTimeout is returned when a page is not fetched within the page timeout.
	ErrPageTimeout = errors.New("page timeout exceeded")

	// ErrPageOrder is returned when a page is requested before its predecessor.
	ErrPageOrder = errors.New("previous page not fetched")
)

// Kind classifies a fetch failure for the caller.
type Kind string

const (
	// KindInvalidCollection means the deck id does not exist remotely.
	KindInvalidCollection Kind = "invalid_collection"

	// KindNetwork means the request failed after retries or with a non-retryable status.
	KindNetwork Kind = "network"

	// KindParse means the remote answered with a body that could not be understood.
	KindParse Kind = "parse"

	// KindTimeout means the per-page deadline expired.
	KindTimeout Kind = "timeout"
)

// FetchError is the typed outcome of a failed FetchPage call.
type FetchError struct {
	Kind       Kind
	Page       int
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d: %s error (status %d): %v", e.Page, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch page %d: %s error: %v", e.Page, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a FetchError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// UserMessage renders err for end users, without internal detail.
func UserMessage(err error) string {
	kind, ok := KindOf(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			return "Transfer cancelled."
		}
		return ""
	}

	switch kind {
	case KindInvalidCollection:
		return "The deck could not be found. Check the deck id and try again."
	case KindNetwork:
		return "Could not reach Duocards. Check your network connection and try again."
	case KindParse:
		return "Duocards returned a response duoload does not understand. The API may have changed."
	case KindTimeout:
		return "Duocards did not answer in time. Try again later or raise the page timeout."
	default:
		return ""
	}
}

// attemptError is a failed attempt that carries its retry classification.
type attemptError struct {
	class      ErrorClass
	statusCode int
	err        error
}

func (e *attemptError) Error() string {
	if e.statusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.class, e.statusCode, e.err)
	}
	return fmt.Sprintf("%s error: %v", e.class, e.err)
}

func (e *attemptError) Unwrap() error {
	return e.err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassNotFound, ErrorClassParse:
		// Retrying cannot fix a bad request or a changed response shape
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
