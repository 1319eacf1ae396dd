// Package helpers glues watermill to the rest of the stack: its logging goes
// through zerolog and every published message is tagged with the id of the
// session it belongs to.
package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
)

// WatermillLogger is a watermill.LoggerAdapter writing to a zerolog.Logger.
// Watermill reports every subscription and handler start at info level, that
// noise is demoted to debug unless the logger is verbose.
type WatermillLogger struct {
	logger    zerolog.Logger
	infoLevel zerolog.Level
}

func NewWatermillLogger(logger zerolog.Logger, verbose bool) *WatermillLogger {
	infoLevel := zerolog.DebugLevel
	if verbose {
		infoLevel = zerolog.InfoLevel
	}
	return &WatermillLogger{
		logger:    logger.With().Str("component", "watermill").Logger(),
		infoLevel: infoLevel,
	}
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

func (w *WatermillLogger) write(level zerolog.Level, msg string, err error, fields watermill.LogFields) {
	e := w.logger.WithLevel(level)
	if e == nil {
		return
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		e = e.Interface(k, v)
	}
	if err != nil {
		e = e.Err(err)
	}
	e.Msg(msg)
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.write(zerolog.ErrorLevel, msg, err, fields)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.write(w.infoLevel, msg, nil, fields)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.write(zerolog.DebugLevel, msg, nil, fields)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.write(zerolog.TraceLevel, msg, nil, fields)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := w.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillLogger{logger: ctx.Logger(), infoLevel: w.infoLevel}
}

const (
	SessionIDMetadataKey = "session_id"
	EventTypeMetadataKey = "event_type"

	anonymousSessionPrefix = "anon_"
)

type sessionIDKey struct{}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(sessionIDKey{}).(string)
	return v, ok && v != ""
}

// SessionIDFromMessage returns the session id a message was published for.
func SessionIDFromMessage(msg *message.Message) string {
	if id := msg.Metadata.Get(SessionIDMetadataKey); id != "" {
		return id
	}
	id, _ := SessionIDFromContext(msg.Context())
	return id
}

// SessionPublisher stamps the session id from each message context into its
// metadata, so that it survives the trip through the pubsub. Messages
// published outside of a session get a generated "anon_" id.
type SessionPublisher struct {
	message.Publisher
}

func (p SessionPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(SessionIDMetadataKey) != "" {
			continue
		}
		id, ok := SessionIDFromContext(msg.Context())
		if !ok {
			id = anonymousSessionPrefix + shortuuid.New()
		}
		msg.Metadata.Set(SessionIDMetadataKey, id)
	}

	return p.Publisher.Publish(topic, messages...)
}
