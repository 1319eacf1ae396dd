package session

import (
	"context"
	"sync"

	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/pkg/errors"
)

var ErrTurnNil = errors.New("turn is nil")

// Outcome describes how a turn was reconciled into the session.
type Outcome struct {
	// Reply is the assistant message that was appended, nil if the result was discarded.
	Reply   *conversation.Message
	Sources []string
	// Failed is true when the exchange failed and the apology was appended.
	Failed bool
	// Discarded is true when the session was cleared while the exchange was in flight.
	Discarded bool
	// Cause is the underlying exchange error, for diagnostics only.
	Cause error
}

// Turn is the handle of a single in-flight exchange. It is cancelable and
// waitable. Callers are free to ignore it and observe the session state instead.
type Turn struct {
	SessionID string
	Prompt    *conversation.Message

	done chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	outcome Outcome
}

func newTurn(sessionID string, prompt *conversation.Message, cancel context.CancelFunc) *Turn {
	return &Turn{
		SessionID: sessionID,
		Prompt:    prompt,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (t *Turn) finish(outcome Outcome) {
	t.mu.Lock()
	t.outcome = outcome
	t.cancel = nil
	close(t.done)
	t.mu.Unlock()
}

// Cancel aborts the exchange. The turn still settles, as a failed turn.
// It is safe to call multiple times.
func (t *Turn) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the turn has been reconciled into the session.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn has been reconciled into the session.
func (t *Turn) Wait() (Outcome, error) {
	if t == nil {
		return Outcome{}, ErrTurnNil
	}
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, nil
}

func (t *Turn) IsRunning() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
