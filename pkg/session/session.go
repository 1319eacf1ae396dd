// Package session owns the state of one conversation with the chat backend.
//
// A Session holds the message history, the unsent draft, the pending flag and
// the sources of the last completed turn. The only ways to change that state
// are Submit, Clear and SetDraft. Presentation layers read snapshots with
// State or receive them after every mutation through Subscribe.
//
// Each accepted Submit appends the user message, starts exactly one exchange
// on the Transport and, once the exchange resolves, appends exactly one
// assistant message: the answer on success, the apology text on failure.
// Exchange failures never surface as errors to the caller.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultApology is appended as the assistant reply when an exchange fails.
const DefaultApology = "Sorry, I encountered an error. Please make sure the backend server is running."

const DefaultExchangeTimeout = 60 * time.Second

type Session struct {
	ID string

	transport transport.Transport
	topK      int
	apology   string
	timeout   time.Duration
	sink      events.Sink
	logger    zerolog.Logger

	// lifetime context, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	history    conversation.Conversation
	draft      string
	pending    bool
	sources    []string
	lastError  error
	generation uint64
	active     *Turn
	closed     bool

	// notifyMu is taken before mu is released so that snapshots reach
	// subscribers in mutation order.
	notifyMu    sync.Mutex
	subscribers map[int]chan State
	nextSubID   int
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) {
		s.ID = id
	}
}

// WithTopK sets the retrieval width sent with every exchange.
func WithTopK(topK int) Option {
	return func(s *Session) {
		s.topK = topK
	}
}

func WithApology(text string) Option {
	return func(s *Session) {
		s.apology = text
	}
}

// WithExchangeTimeout bounds each exchange. Zero disables the session-level timeout.
func WithExchangeTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.timeout = timeout
	}
}

func WithSink(sink events.Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates an idle session with an empty history.
func New(t transport.Transport, options ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Session{
		ID:          uuid.NewString(),
		transport:   t,
		topK:        transport.DefaultTopK,
		apology:     DefaultApology,
		timeout:     DefaultExchangeTimeout,
		sink:        events.NopSink{},
		logger:      log.Logger,
		ctx:         ctx,
		cancel:      cancel,
		history:     conversation.Conversation{},
		sources:     []string{},
		subscribers: map[int]chan State{},
	}

	for _, o := range options {
		o(ret)
	}
	ret.logger = ret.logger.With().Str("session_id", ret.ID).Logger()

	return ret
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	return State{
		History:    s.history,
		Draft:      s.draft,
		Pending:    s.pending,
		Sources:    s.sources,
		LastError:  s.lastError,
		Generation: s.generation,
	}.clone()
}

// Submit starts a new turn with text and returns its handle.
//
// If the trimmed text is empty, a turn is already pending or the session is
// closed, Submit does nothing and returns nil.
//
// The exchange runs in the background with a context derived from ctx; it is
// also cancelled by Close and bounded by the exchange timeout.
func (s *Session) Submit(ctx context.Context, text string) *Turn {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed || s.pending {
		s.mu.Unlock()
		return nil
	}

	prompt := conversation.NewUserMessage(trimmed)
	s.history = append(s.history, prompt)
	s.draft = ""
	s.pending = true
	s.sources = []string{}
	s.lastError = nil

	history := s.history.Clone()
	generation := s.generation

	runCtx, cancel := s.exchangeContext(ctx)
	turn := newTurn(s.ID, prompt, cancel)
	s.active = turn
	s.wg.Add(1)

	ev := s.newEventLocked(events.EventTypeSubmitted)
	s.unlockAndNotify(ev)

	s.logger.Debug().
		Int("history_len", len(history)).
		Int("top_k", s.topK).
		Msg("Submitted turn")

	go s.run(runCtx, turn, history, generation)

	return turn
}

func (s *Session) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancelRun := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancelRun)

	cancelTimeout := context.CancelFunc(func() {})
	if s.timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.timeout)
	}

	return runCtx, func() {
		stop()
		cancelTimeout()
		cancelRun()
	}
}

func (s *Session) run(ctx context.Context, turn *Turn, history conversation.Conversation, generation uint64) {
	defer s.wg.Done()

	res, err := s.exchange(ctx, history)
	turn.Cancel()
	s.settle(turn, generation, res, err)
}

// exchange calls the transport, turning panics and empty results into failures.
func (s *Session) exchange(ctx context.Context, history conversation.Conversation) (res *transport.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = transport.AsExchangeError(errors.Errorf("transport panicked: %v", r))
		}
	}()

	if s.transport == nil {
		return nil, transport.AsExchangeError(errors.New("session has no transport"))
	}

	res, err = s.transport.Exchange(ctx, history, s.topK)
	if err != nil {
		return nil, transport.AsExchangeError(err)
	}
	if res == nil {
		return nil, transport.AsExchangeError(errors.New("transport returned no result"))
	}
	return res, nil
}

// settle reconciles an exchange result into the state. Clearing the pending
// flag happens in a deferred function so that it runs on every path.
func (s *Session) settle(turn *Turn, generation uint64, res *transport.Result, err error) {
	outcome := Outcome{Cause: err}
	ev := (*events.SessionEvent)(nil)

	s.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Panic while reconciling turn")
			outcome.Failed = true
			if outcome.Cause == nil {
				outcome.Cause = errors.Errorf("panic while reconciling turn: %v", r)
			}
		}
		s.pending = false
		if s.active == turn {
			s.active = nil
		}
		if ev == nil {
			ev = s.newEventLocked(events.EventTypeSettled)
		}
		ev.Pending = false
		s.unlockAndNotify(ev)
		turn.finish(outcome)
	}()

	if generation != s.generation {
		outcome.Discarded = true
		ev = s.newEventLocked(events.EventTypeDiscarded)
		s.logger.Debug().Err(err).Msg("Discarding exchange result after clear")
		return
	}

	if err != nil {
		s.logger.Warn().Err(err).Msg("Chat exchange failed")
		reply := conversation.NewAssistantMessage(s.apology)
		s.history = append(s.history, reply)
		s.sources = []string{}
		s.lastError = err

		outcome.Reply = reply
		outcome.Failed = true

		ev = s.newEventLocked(events.EventTypeSettled)
		ev.Error = err.Error()
		return
	}

	sources := append([]string{}, res.Sources...)
	reply := conversation.NewAssistantMessage(res.Answer)
	s.history = append(s.history, reply)
	s.sources = sources

	outcome.Reply = reply
	outcome.Sources = append([]string{}, sources...)

	ev = s.newEventLocked(events.EventTypeSettled)
	ev.OK = true
	ev.Sources = len(sources)
}

// Clear resets history and sources. The draft and the pending flag are kept.
// A turn still in flight is not interrupted, but its result is discarded.
func (s *Session) Clear() {
	s.mu.Lock()
	s.history = conversation.Conversation{}
	s.sources = []string{}
	s.generation++
	ev := s.newEventLocked(events.EventTypeCleared)
	s.unlockAndNotify(ev)

	s.logger.Debug().Msg("Cleared session")
}

// SetDraft replaces the unsent input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	if s.draft == text {
		s.mu.Unlock()
		return
	}
	s.draft = text
	ev := s.newEventLocked(events.EventTypeDraft)
	s.unlockAndNotify(ev)
}

// Cancel aborts the in-flight exchange, if any. The turn settles as failed.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	if t == nil {
		return false
	}
	t.Cancel()
	return true
}

// Subscribe returns a channel that receives a snapshot after every mutation.
// The channel holds only the latest snapshot; slow readers skip intermediate
// states. The returned function unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	closed := s.closed
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	if closed || s.subscribers == nil {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.notifyMu.Lock()
			defer s.notifyMu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
		})
	}
}

// Close cancels any in-flight exchange, waits for it to settle and closes
// all subscriptions. Submit is a no-op on a closed session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.notifyMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subscribers = nil
	s.notifyMu.Unlock()
}

func (s *Session) newEventLocked(type_ events.EventType) *events.SessionEvent {
	ev := events.NewSessionEvent(type_, s.ID)
	ev.HistoryLen = len(s.history)
	ev.Pending = s.pending
	ev.Sources = len(s.sources)
	return ev
}

// unlockAndNotify must be called with mu held. It releases mu and delivers
// the snapshot and event while holding notifyMu.
func (s *Session) unlockAndNotify(ev *events.SessionEvent) {
	snapshot := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
			// drop the stale snapshot, keep the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}

	if ev != nil && s.sink != nil {
		if err := s.sink.PublishEvent(ev); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to publish session event")
		}
	}
}
