package chatwire

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies what kind of frame is being exchanged.
type FrameType string

// Frame types exchanged between client and server.
const (
	// FrameAuthenticate is the client handshake frame carrying the bearer token.
	FrameAuthenticate FrameType = "authenticate"
	// FrameAuthenticated is the server reply carrying the authenticated identity.
	FrameAuthenticated FrameType = "authenticated"
	// FrameAuthError is the server reply when the handshake fails.
	FrameAuthError FrameType = "auth_error"

	// FrameSendMessage carries an outbound chat message.
	FrameSendMessage FrameType = "send_message"
	// FrameMessageSent acknowledges a delivered chat message.
	FrameMessageSent FrameType = "message_sent"
	// FrameChatError reports a failed chat operation.
	FrameChatError FrameType = "chat_error"

	// FrameMarkMessagesRead asks the server to flag messages as read.
	FrameMarkMessagesRead FrameType = "mark_messages_read"
	// FrameMarkMessagesSeen asks the server to flag messages as seen.
	FrameMarkMessagesSeen FrameType = "mark_messages_seen"
	// FrameMessagesRead notifies the sender that messages were read.
	FrameMessagesRead FrameType = "messages_read"
	// FrameMessagesSeen notifies the sender that messages were seen.
	FrameMessagesSeen FrameType = "messages_seen"
	// FrameMessageSeen notifies the sender about a single seen message.
	FrameMessageSeen FrameType = "message_seen"

	// FrameTypingStart signals the counterpart started typing.
	FrameTypingStart FrameType = "typing_start"
	// FrameTypingStop signals the counterpart stopped typing.
	FrameTypingStop FrameType = "typing_stop"
	// FrameUserTyping relays a typing state change to the counterpart.
	FrameUserTyping FrameType = "user_typing"

	// FrameAdminOnline announces the admin counterpart's online state.
	FrameAdminOnline FrameType = "admin_online"
)

// Liveness probes are bare text frames, not JSON. A peer receiving
// rawPing replies with rawPong on the same connection.
const (
	rawPing = "ping"
	rawPong = "pong"
)

// MaxFrameSizeDefault is the default maximum size of a single frame.
const MaxFrameSizeDefault = 1024 * 1024 // 1MB

// Frame is one discrete unit exchanged over the transport, a tagged union
// over all frame types. Only the fields relevant to Type are populated.
type Frame struct {
	Type FrameType `json:"type"`

	// Handshake fields.
	Token  string `json:"token,omitempty"`
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`

	// Error reason for auth_error and chat_error.
	Error string `json:"error,omitempty"`

	// Chat message fields.
	ID         string `json:"id,omitempty"`
	Message    string `json:"message,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`

	// Read/seen marking.
	MessageIDs []string `json:"messageIds,omitempty"`

	// Ephemeral signaling. Absent means false.
	IsTyping bool `json:"isTyping,omitempty"`
	IsOnline bool `json:"isOnline,omitempty"`
}

// EncodeFrame serializes a frame to its wire representation.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing frame type", ErrMalformedFrame)
	}
	return json.Marshal(f)
}

// DecodeFrame parses a wire frame, enforcing the size limit.
// Bare ping/pong probes are not JSON and must be filtered out by the
// caller before decoding.
func DecodeFrame(data []byte, maxSize int) (*Frame, error) {
	if maxSize > 0 && len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, len(data), maxSize)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing frame type", ErrMalformedFrame)
	}
	return &f, nil
}

// isProbe reports whether raw payload is a bare liveness probe or its reply.
func isProbe(data []byte) (ping, pong bool) {
	switch string(data) {
	case rawPing:
		return true, false
	case rawPong:
		return false, true
	}
	return false, false
}
