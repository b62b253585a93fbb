// Package senderpool tracks the health, load and rate-limit state of the
// sending identities and picks one for each dispatch.
package senderpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sunil55999/Zorox/internal/models"
)

// Sender is a sending identity on the platform. Implementations must be safe
// for concurrent use.
type Sender interface {
	ID() int64
	SendText(ctx context.Context, chat int64, text string, entities []models.Entity, replyTo int, disablePreview bool) (int, error)
	SendMedia(ctx context.Context, chat int64, kind models.MediaTag, data []byte, caption string, entities []models.Entity, replyTo int) (int, error)
	EditText(ctx context.Context, chat int64, msgID int, text string, entities []models.Entity) error
	DeleteMessage(ctx context.Context, chat int64, msgID int) error
	KickUser(ctx context.Context, chat int64, userID int64) error
	UnbanUser(ctx context.Context, chat int64, userID int64) error
	// Ping verifies the identity still reaches the platform; used by the
	// health probe to readmit senders.
	Ping(ctx context.Context) error
}

// ErrKind classifies a send outcome.
type ErrKind int

// ErrKind values.
const (
	KindTransient ErrKind = iota
	KindRateLimited
	KindPermanent
)

// SendError is the tagged error senders return.
type SendError struct {
	Kind       ErrKind
	RetryAfter time.Duration // set when Kind == KindRateLimited
	Code       string        // platform error code for permanent failures
	Err        error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("rate limited for %s: %v", e.RetryAfter, e.Err)
	case KindPermanent:
		return fmt.Sprintf("permanent send failure (%s): %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("transient send failure: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) *SendError { return &SendError{Kind: KindTransient, Err: err} }

// RateLimited wraps err with the platform's retry-after delay.
func RateLimited(err error, after time.Duration) *SendError {
	return &SendError{Kind: KindRateLimited, RetryAfter: after, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error, code string) *SendError {
	return &SendError{Kind: KindPermanent, Code: code, Err: err}
}

// Classify extracts the SendError from err; unknown errors default to
// transient so the retry policy gets a chance.
func Classify(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: KindTransient, Err: err}
}
