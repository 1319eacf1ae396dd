package session

import (
	"strings"

	"github.com/go-go-golems/ragchat/pkg/conversation"
)

// State is a point-in-time copy of a Session. Mutating a State has no effect
// on the session it was taken from.
type State struct {
	History conversation.Conversation
	Draft   string
	Pending bool
	// Sources belong to the most recent completed turn only.
	Sources []string

	// LastError is the cause of the most recent failed exchange, kept for
	// diagnostics. It is reset when a new turn starts.
	LastError error
	// Generation is bumped by every Clear.
	Generation uint64
}

// Loading reports whether a loading indicator should be shown.
func (s State) Loading() bool {
	return s.Pending
}

// CanSubmit reports whether submitting the current draft would start a turn.
func (s State) CanSubmit() bool {
	return !s.Pending && strings.TrimSpace(s.Draft) != ""
}

func (s State) HasSources() bool {
	return len(s.Sources) > 0
}

func (s State) clone() State {
	ret := s
	ret.History = s.History.Clone()
	ret.Sources = append([]string{}, s.Sources...)
	return ret
}
