package transport

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/campushub/campus-sync/internal/model"
)

// Server-pushed event names.
const (
	EventNotification  = "notification"
	EventMessage       = "message"
	EventTyping        = "typing"
	EventEventUpdate   = "event_update"
	EventBookingUpdate = "booking_update"
)

// Outbound event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
)

// Handler consumes the raw payload of one named push event. Handlers
// registered for the same event run in registration order. A handler
// must not call On/Off/Disconnect on its own client.
type Handler func(data json.RawMessage)

// Client is the single point of access to the live push channel.
// Connecting is best-effort: the system stays functionally correct in
// pull-only mode with the transport permanently disconnected.
type Client interface {
	// Connect is idempotent and a no-op without a session credential.
	// Failures are logged, never surfaced to the caller.
	Connect(ctx context.Context)
	// Disconnect is idempotent; it releases the channel and clears all
	// registered subscriptions before returning, so no handler runs
	// afterwards.
	Disconnect()
	Connected() bool
	// On subscribes a handler to a named event and returns a
	// subscription id for Off.
	On(event string, h Handler) int
	Off(event string, id int)
	// Emit is best-effort; the payload is dropped, not queued, when
	// disconnected.
	Emit(event string, payload any)
}

// Emit helpers mirroring the platform's outbound event shapes.

func JoinRoom(c Client, room string) {
	c.Emit(EventJoinRoom, map[string]any{"room": room})
}

func LeaveRoom(c Client, room string) {
	c.Emit(EventLeaveRoom, map[string]any{"room": room})
}

func SendMessage(c Client, threadID uuid.UUID, content string, attachments []model.Attachment) {
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	c.Emit(EventSendMessage, map[string]any{
		"thread_id":   threadID,
		"content":     content,
		"attachments": attachments,
	})
}

func MarkRead(c Client, messageID uuid.UUID) {
	c.Emit(EventMarkRead, map[string]any{"message_id": messageID})
}

func Typing(c Client, threadID uuid.UUID, isTyping bool) {
	c.Emit(EventTyping, map[string]any{
		"thread_id": threadID,
		"is_typing": isTyping,
	})
}
