package message

import (
	"fmt"
	"sync"
)

// Thread is the ordered message history of a single conversation. Messages
// are appended monotonically; nothing removes a message once added. A
// Thread should only be driven by one Agent Loop run at a time — see
// DESIGN.md's Open Question decision on concurrent readers.
type Thread struct {
	ID       string            `json:"id"`
	Platform map[string]string `json:"platform,omitempty"`

	mu       sync.RWMutex
	messages []Message
}

// NewThread creates an empty thread with a generated id.
func NewThread() *Thread {
	return &Thread{ID: newID()}
}

// NewThreadWithID creates an empty thread with a caller-supplied id, for
// stores that assign ids externally.
func NewThreadWithID(id string) *Thread {
	return &Thread{ID: id}
}

// Add appends a message, assigning it an id if it doesn't have one, and
// enforcing the invariants from spec.md §3:
//
//	(a) a tool message's tool_call_id must match a tool call on some earlier
//	    assistant message in this thread;
//	(b) tool messages for one assistant message precede the next assistant
//	    message — not enforced here structurally (the Agent Loop's ordering
//	    guarantees it), but double-registration of a tool_call_id is rejected;
//	(c) at most one system message, and only at index 0;
//	(d) append-only — there is no Remove.
func (t *Thread) Add(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ID == "" {
		m.ID = newID()
	}

	switch m.Role {
	case RoleSystem:
		if len(t.messages) != 0 {
			return fmt.Errorf("message: system message must be first, thread already has %d messages", len(t.messages))
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return fmt.Errorf("message: tool message missing tool_call_id")
		}
		found := false
		for _, existing := range t.messages {
			for _, tc := range existing.ToolCalls {
				if tc.ID == m.ToolCallID {
					found = true
				}
			}
			if existing.Role == RoleTool && existing.ToolCallID == m.ToolCallID {
				return fmt.Errorf("message: duplicate tool message for tool_call_id %q", m.ToolCallID)
			}
		}
		if !found {
			return fmt.Errorf("message: tool_call_id %q does not match any earlier assistant tool call", m.ToolCallID)
		}
	}

	t.messages = append(t.messages, m)
	return nil
}

// MustAdd is Add, panicking on invariant violation. Intended for tests and
// for internal Agent Loop call sites where the loop itself constructed the
// message and a violation would indicate a loop bug, not caller error.
func (t *Thread) MustAdd(m Message) {
	if err := t.Add(m); err != nil {
		panic(err)
	}
}

// Messages returns a copy of the current message slice. Safe to range over
// while another goroutine (e.g. a concurrently cancelled run winding down)
// finishes appending; callers must not mutate the returned slice's elements
// and expect it reflected back into the thread.
func (t *Thread) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the current message count.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// LastAssistantMessage returns the most recent assistant message, if any.
func (t *Thread) LastAssistantMessage() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == RoleAssistant {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

// IsTerminal reports whether the thread's last assistant message carries no
// tool calls — i.e. a run against this thread right now would append zero
// new messages (spec.md §8, "run against an already-terminal thread").
func (t *Thread) IsTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return false
	}
	last := t.messages[len(t.messages)-1]
	return last.Role == RoleAssistant && len(last.ToolCalls) == 0
}

// EnrichMetrics updates the Metrics of the message with the given id, for
// post-hoc metric enrichment (the one mutation spec.md permits on an
// already-appended message).
func (t *Thread) EnrichMetrics(id string, m Metrics) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Metrics = m
			return true
		}
	}
	return false
}
