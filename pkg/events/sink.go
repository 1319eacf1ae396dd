package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/ragchat/pkg/helpers"
	"github.com/rs/zerolog/log"
)

// Sink receives session events. Sinks must not block for long, they are
// called from the session's goroutines.
type Sink interface {
	PublishEvent(e *SessionEvent) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) PublishEvent(*SessionEvent) error { return nil }

// WatermillSink publishes events as JSON watermill messages on a topic.
// With the EventRouter's pubsub, PublishEvent returns once every handler has
// acknowledged the message, so handlers see events in publication order.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: helpers.SessionPublisher{Publisher: publisher},
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(e *SessionEvent) error {
	payload, err := e.Payload()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal session event")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(helpers.ContextWithSessionID(context.Background(), e.SessionID))
	msg.Metadata.Set(helpers.EventTypeMetadataKey, string(e.Type))

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish session event")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type)).Msg("Published session event")
	return nil
}

var _ Sink = (*WatermillSink)(nil)

// RecordingSink keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []*SessionEvent
}

func (r *RecordingSink) PublishEvent(e *SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *RecordingSink) Events() []*SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]*SessionEvent, len(r.events))
	copy(ret, r.events)
	return ret
}

func (r *RecordingSink) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		ret = append(ret, e.Type)
	}
	return ret
}
