package chatwire

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// MemoryMessageStore is an in-memory MessageStore for tests and
// examples. Production deployments persist messages through the
// application's data-access layer instead.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*ChatMessage
}

// NewMemoryMessageStore creates an empty in-memory store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages: make(map[string]*ChatMessage),
	}
}

// Save persists a message, assigning an ID and timestamp if missing.
func (s *MemoryMessageStore) Save(msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV4()).String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	stored := *msg
	s.messages[msg.ID] = &stored
	return nil
}

// MarkRead flags messages as read.
func (s *MemoryMessageStore) MarkRead(messageIDs []string) ([]*ChatMessage, error) {
	return s.mark(messageIDs, func(m *ChatMessage) { m.Read = true })
}

// MarkSeen flags messages as seen.
func (s *MemoryMessageStore) MarkSeen(messageIDs []string) ([]*ChatMessage, error) {
	return s.mark(messageIDs, func(m *ChatMessage) { m.Seen = true })
}

// Get returns a stored message by ID.
func (s *MemoryMessageStore) Get(id string) (*ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	copied := *msg
	return &copied, true
}

// Len returns the number of stored messages.
func (s *MemoryMessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MemoryMessageStore) mark(messageIDs []string, apply func(*ChatMessage)) ([]*ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]*ChatMessage, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, ok := s.messages[id]
		if !ok {
			continue
		}
		apply(msg)
		copied := *msg
		updated = append(updated, &copied)
	}
	return updated, nil
}
