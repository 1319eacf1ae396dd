package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeSubmitted is emitted once a user message was appended and the exchange started.
	EventTypeSubmitted EventType = "session.submitted"
	// EventTypeSettled is emitted when an exchange was reconciled into the history.
	EventTypeSettled EventType = "session.settled"
	// EventTypeDiscarded is emitted when a late exchange result is dropped after a clear.
	EventTypeDiscarded EventType = "session.discarded"
	EventTypeCleared   EventType = "session.cleared"
	EventTypeDraft     EventType = "session.draft"
)

// SessionEvent describes a state change of a conversation session.
// It carries counts rather than message content so it is safe to log.
type SessionEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`

	HistoryLen int    `json:"history_len"`
	Pending    bool   `json:"pending"`
	Sources    int    `json:"sources"`
	OK         bool   `json:"ok,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewSessionEvent(type_ EventType, sessionID string) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.New(),
		Type:      type_,
		SessionID: sessionID,
		Time:      time.Now(),
	}
}

func (e *SessionEvent) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	ev.Str("session_id", e.SessionID)
	ev.Int("history_len", e.HistoryLen)
	ev.Bool("pending", e.Pending)
	ev.Int("sources", e.Sources)
	if e.Type == EventTypeSettled {
		ev.Bool("ok", e.OK)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

var _ zerolog.LogObjectMarshaler = (*SessionEvent)(nil)

func (e *SessionEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

func NewSessionEventFromJson(b []byte) (*SessionEvent, error) {
	var e SessionEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode session event")
	}
	if e.Type == "" {
		return nil, errors.New("session event has no type")
	}
	return &e, nil
}
