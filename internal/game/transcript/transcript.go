// Package transcript maintains the conversation history for a combat
// encounter: the seeded system context, the player and referee exchanges,
// and the corrective notes added during validation retries.
package transcript

import (
	"strings"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Log is an in-memory transcript. It is not safe for concurrent use;
// the combat session serializes access.
type Log struct {
	messages []Message
}

// New creates an empty transcript log.
func New() *Log {
	return &Log{}
}

// FromMessages creates a log holding the given messages.
func FromMessages(msgs []Message) *Log {
	l := &Log{messages: make([]Message, len(msgs))}
	copy(l.messages, msgs)
	return l
}

// Append adds a message to the end of the log.
func (l *Log) Append(role Role, content string) {
	l.messages = append(l.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the log's messages.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}

// Truncate drops the last n messages.
//
// Precondition: n >= 0.
func (l *Log) Truncate(n int) {
	if n <= 0 {
		return
	}
	if n >= len(l.messages) {
		l.messages = l.messages[:0]
		return
	}
	l.messages = l.messages[:len(l.messages)-n]
}

// ReplaceSystem updates the content of the first system message whose
// content starts with prefix, or appends a new system message if none
// matches. Used to keep the seeded context current as state changes.
//
// Postcondition: Exactly one system message starting with prefix exists
// and holds content.
func (l *Log) ReplaceSystem(prefix, content string) {
	for i := range l.messages {
		if l.messages[i].Role == RoleSystem && strings.HasPrefix(l.messages[i].Content, prefix) {
			l.messages[i].Content = content
			return
		}
	}
	l.messages = append(l.messages, Message{Role: RoleSystem, Content: content})
}

// PruneUserNotes reduces every user message before the latest one to its
// bare player text, dropping the injected state and dice blocks. Keeps the
// transcript from growing a full state snapshot per turn.
func (l *Log) PruneUserNotes() {
	lastUser := -1
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == RoleUser {
			lastUser = i
			break
		}
	}
	for i := range l.messages {
		if i == lastUser || l.messages[i].Role != RoleUser {
			continue
		}
		if line := playerLine(l.messages[i].Content); line != "" {
			l.messages[i].Content = line
		}
	}
}

// playerLine extracts the "Player: ..." line from a composed turn prompt.
// Returns "" when the content has no player line.
func playerLine(content string) string {
	idx := strings.LastIndex(content, "Player:")
	if idx < 0 {
		return ""
	}
	line := content[idx:]
	if nl := strings.Index(line, "\n"); nl >= 0 {
		line = line[:nl]
	}
	return strings.TrimSpace(line)
}

// NonSystem returns the user and assistant messages in order.
func (l *Log) NonSystem() []Message {
	var out []Message
	for _, m := range l.messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Tail returns the last n messages.
//
// Precondition: n >= 0.
func (l *Log) Tail(n int) []Message {
	if n <= 0 {
		return nil
	}
	if n > len(l.messages) {
		n = len(l.messages)
	}
	out := make([]Message, n)
	copy(out, l.messages[len(l.messages)-n:])
	return out
}
