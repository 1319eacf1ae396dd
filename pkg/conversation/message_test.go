package conversation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_AssignsIDAndTime(t *testing.T) {
	m1 := NewUserMessage("hi")
	m2 := NewAssistantMessage("hello")

	require.NotEqual(t, uuid.Nil, m1.ID)
	require.NotEqual(t, m1.ID, m2.ID)
	assert.Equal(t, RoleUser, m1.Role)
	assert.Equal(t, RoleAssistant, m2.Role)
	assert.False(t, m1.Time.IsZero())
}

func TestNewMessage_Options(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMessage(RoleUser, "x", WithID(id), WithTime(ts))
	assert.Equal(t, id, m.ID)
	assert.Equal(t, ts, m.Time)
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	c := Conversation{NewUserMessage("a")}
	cp := c.Clone()
	cp = append(cp, NewAssistantMessage("b"))

	assert.Len(t, c, 1)
	assert.Len(t, cp, 2)
	assert.Same(t, c[0], cp[0])

	var nilConv Conversation
	assert.NotNil(t, nilConv.Clone())
	assert.Len(t, nilConv.Clone(), 0)
}

func TestConversation_View(t *testing.T) {
	c := Conversation{
		NewUserMessage("What is X?"),
		NewAssistantMessage("X is Y\n"),
	}
	assert.Equal(t, "[user]: What is X?\n[assistant]: X is Y\n", c.View())
}

func TestMessage_ViewMarkdownFence(t *testing.T) {
	m := NewAssistantMessage("```go\nfmt.Println()\n```")
	assert.Equal(t, "[assistant]: \n```go\nfmt.Println()\n```", m.View())
}
