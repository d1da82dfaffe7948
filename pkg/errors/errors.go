package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrIndexEngine       = errors.New("index engine error")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrNoDeliveryChannel = errors.New("no config delivery channel")
	ErrDeliveryFailed    = errors.New("snapshot delivery failed")
	ErrSnapshotNotFound  = errors.New("snapshot file not found")
	ErrPollExhausted     = errors.New("snapshot poll budget exhausted")
	ErrMalformedRecord   = errors.New("malformed inventory record")
	ErrLockHeld          = errors.New("another run holds the lock")
	ErrLockLost          = errors.New("run lock lost")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalid builds a caller-contract violation error.
func Invalid(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, 0, format, args...)
}

// FromStatus maps a non-2xx index-engine response to an AppError wrapping the
// closest sentinel. The body is truncated so log lines stay readable.
func FromStatus(statusCode int, body []byte) *AppError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	var sentinel error
	switch {
	case statusCode == http.StatusNotFound:
		sentinel = ErrDocumentNotFound
	case statusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case statusCode == http.StatusBadRequest:
		sentinel = ErrInvalidInput
	default:
		sentinel = ErrIndexEngine
	}
	return Newf(sentinel, statusCode, "status %d: %s", statusCode, msg)
}

// StatusCode returns the index-engine status carried by err, or 0.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// Outcome names how a region run ended. Values are persisted in the run
// ledger and published with region events.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeNoChannel      Outcome = "skipped_no_channel"
	OutcomeDeliveryFailed Outcome = "skipped_delivery_failed"
	OutcomeNotDelivered   Outcome = "skipped_not_delivered"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeIngestFailed   Outcome = "ingest_failed"
	OutcomeFailed         Outcome = "failed"
)

// Classify maps an error returned while processing a region to its outcome.
// A nil error is a completed region.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrNoDeliveryChannel):
		return OutcomeNoChannel
	case errors.Is(err, ErrDeliveryFailed):
		return OutcomeDeliveryFailed
	case errors.Is(err, ErrPollExhausted), errors.Is(err, ErrSnapshotNotFound):
		return OutcomeNotDelivered
	default:
		return OutcomeFailed
	}
}
