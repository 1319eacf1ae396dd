package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn entry in the transcript. Messages are never
// mutated once they have been appended to a Conversation.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(message *Message) {
		message.Time = t
	}
}

func WithID(id uuid.UUID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleUser, content, options...)
}

func NewAssistantMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleAssistant, content, options...)
}

func (m *Message) String() string {
	return m.Content
}

// View renders the message as a single "[role]: text" block.
func (m *Message) View() string {
	text := m.Content
	// If we are markdown, add a newline so that it becomes valid markdown to parse.
	if strings.HasPrefix(text, "```") {
		text = "\n" + text
	}
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(text, "\n"))
}

// Conversation is the ordered transcript. Order is creation order and is
// sent as-is to the backend on every turn.
type Conversation []*Message

// Clone returns a copy of the slice. Messages are shared since they are immutable.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return Conversation{}
	}
	ret := make(Conversation, len(c))
	copy(ret, c)
	return ret
}

// View concatenates all messages, one "[role]: text" block per line.
func (c Conversation) View() string {
	var sb strings.Builder
	for _, m := range c {
		sb.WriteString(m.View())
		sb.WriteString("\n")
	}
	return sb.String()
}
