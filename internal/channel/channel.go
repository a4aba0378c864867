// Package channel defines the adapter the dispatch workers send through
// and its typed transient/permanent error model.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/postflow/engage/internal/entities"
)

// ErrorKind separates errors the worker may retry from those that fail the
// plan immediately.
type ErrorKind int

const (
	// KindTransient covers network faults, 5xx responses and throttling;
	// the worker retries these with backoff.
	KindTransient ErrorKind = iota
	// KindPermanent covers 4xx-class responses and revoked auth; the plan
	// fails immediately and the reason is surfaced to the rule owner.
	KindPermanent
)

// Error is a typed channel failure.
type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status when applicable, 0 otherwise
	Message string
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Kind == KindPermanent {
		kind = "permanent"
	}
	if e.Status > 0 {
		return fmt.Sprintf("channel %s error (status %d): %s", kind, e.Status, e.Message)
	}
	return fmt.Sprintf("channel %s error: %s", kind, e.Message)
}

// Transient builds a retryable channel error.
func Transient(status int, message string) *Error {
	return &Error{Kind: KindTransient, Status: status, Message: message}
}

// Permanent builds a non-retryable channel error.
func Permanent(status int, message string) *Error {
	return &Error{Kind: KindPermanent, Status: status, Message: message}
}

// IsPermanent reports whether err is a permanent channel error. Anything
// else — transient channel errors, wrapped network faults, context
// cancellation — is treated as retryable.
func IsPermanent(err error) bool {
	var chErr *Error
	return errors.As(err, &chErr) && chErr.Kind == KindPermanent
}

// Adapter sends replies and DMs through the platform gateway. Delivery is
// at-least-once; the engine guards against double sends via step-level
// completion, not the adapter.
type Adapter interface {
	SendPublicReply(ctx context.Context, platform entities.Platform, postID, actorID, text string) error
	SendDirectMessage(ctx context.Context, platform entities.Platform, actorID, text string) error
}
