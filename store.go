package chatwire

import (
	"errors"
	"time"
)

// ErrMessageNotFound is returned when a read/seen mark references an
// unknown message ID.
var ErrMessageNotFound = errors.New("message not found")

// ChatMessage is the durable record of a delivered chat message. Read
// and seen are independent flags: read means the conversation was
// opened, seen means the message itself was displayed.
type ChatMessage struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Content     string
	ContentType string
	SentAt      time.Time
	Read        bool
	Seen        bool
}

// MessageStore is the external persistence collaborator. The transport
// keeps no durable state itself; a message becomes durable the moment
// the server stores it, before the delivery ack is sent.
type MessageStore interface {
	// Save persists a new message. The store assigns SentAt if zero.
	Save(msg *ChatMessage) error

	// MarkRead flags messages as read and returns the updated records.
	// Unknown IDs are skipped, not errors.
	MarkRead(messageIDs []string) ([]*ChatMessage, error)

	// MarkSeen flags messages as seen and returns the updated records.
	// Unknown IDs are skipped, not errors.
	MarkSeen(messageIDs []string) ([]*ChatMessage, error)
}
