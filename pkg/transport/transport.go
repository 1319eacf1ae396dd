// Package transport performs single request/response exchanges with the
// retrieval-augmented chat backend.
//
// A Transport keeps no state between exchanges: it does not retry, cache or
// remember history. Every failure, whatever its cause, is reported as an
// *ExchangeError matching ErrExchangeFailed.
package transport

import (
	"context"
	"fmt"

	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/pkg/errors"
)

// DefaultTopK is the retrieval width the session sends with every exchange.
const DefaultTopK = 5

// Result is the outcome of a successful exchange.
type Result struct {
	Answer  string
	Sources []string
}

type Transport interface {
	Exchange(ctx context.Context, history conversation.Conversation, topK int) (*Result, error)
}

// FuncTransport adapts a plain function to the Transport interface.
type FuncTransport func(ctx context.Context, history conversation.Conversation, topK int) (*Result, error)

func (f FuncTransport) Exchange(ctx context.Context, history conversation.Conversation, topK int) (*Result, error) {
	return f(ctx, history, topK)
}

var _ Transport = FuncTransport(nil)

var ErrExchangeFailed = errors.New("exchange failed")

// FailureReason is diagnostic only. Callers are expected to treat all
// reasons the same way.
type FailureReason string

const (
	FailureNetwork   FailureReason = "network"
	FailureStatus    FailureReason = "status"
	FailureMalformed FailureReason = "malformed"
)

type ExchangeError struct {
	Reason     FailureReason
	StatusCode int
	Cause      error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("%s: %s (status %d): %v", ErrExchangeFailed, e.Reason, e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (status %d)", ErrExchangeFailed, e.Reason, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", ErrExchangeFailed, e.Reason, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", ErrExchangeFailed, e.Reason)
	}
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchangeFailed
}

func newExchangeError(reason FailureReason, cause error) *ExchangeError {
	return &ExchangeError{Reason: reason, Cause: cause}
}

// AsExchangeError normalizes any error into an *ExchangeError. Errors that do
// not come from a Transport are classified as network failures.
func AsExchangeError(err error) *ExchangeError {
	if err == nil {
		return nil
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee
	}
	return newExchangeError(FailureNetwork, err)
}
