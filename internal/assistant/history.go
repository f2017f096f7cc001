package assistant

import (
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// History is the bounded conversation sent to the chat backend. It keeps at
// most max messages and forgets everything once the session has been idle for
// longer than timeout. It is safe for concurrent use.
type History struct {
	max     int
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	messages []llm.Message
	lastUsed time.Time
}

// NewHistory returns an empty History. A non-positive timeout disables
// expiry.
func NewHistory(max int, timeout time.Duration) *History {
	return &History{max: max, timeout: timeout, now: time.Now}
}

// Append adds messages, trims the oldest beyond the cap and refreshes the
// session.
func (h *History) Append(msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expireLocked()
	h.messages = append(h.messages, msgs...)
	if h.max > 0 && len(h.messages) > h.max {
		h.messages = slices.Clone(h.messages[len(h.messages)-h.max:])
	}
	h.lastUsed = h.now()
}

// Messages returns a copy of the live history. An expired session is cleared
// first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expireLocked()
	return slices.Clone(h.messages)
}

// Len returns the number of live messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expireLocked()
	return len(h.messages)
}

// Clear forgets the conversation.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

func (h *History) expireLocked() {
	if h.timeout <= 0 || len(h.messages) == 0 {
		return
	}
	if h.now().Sub(h.lastUsed) > h.timeout {
		h.messages = nil
	}
}
