package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ThreadType string

const (
	ThreadTypeDirect  ThreadType = "direct"
	ThreadTypeGroup   ThreadType = "group"
	ThreadTypeEvent   ThreadType = "event"
	ThreadTypeClub    ThreadType = "club"
	ThreadTypeProject ThreadType = "project"
)

// UserRef is the participant/sender projection embedded in messaging
// payloads.
type UserRef struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
}

// ThreadRef is the minimal thread object nested in pushed messages.
type ThreadRef struct {
	ID uuid.UUID `json:"id"`
}

type Attachment struct {
	ID       uuid.UUID `json:"id,omitempty"`
	URL      string    `json:"url,omitempty"`
	FileName string    `json:"file_name,omitempty"`
}

// ReadReceipt is a per-user acknowledgement attached to a message,
// unique per user, never recorded for the sender.
type ReadReceipt struct {
	User   UserRef   `json:"user"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID          uuid.UUID  `json:"id" validate:"required"`
	ThreadID    uuid.UUID  `json:"thread_id,omitempty"`
	Thread      *ThreadRef `json:"thread,omitempty"`
	Sender      UserRef    `json:"sender"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type,omitempty"`

	Attachments  []Attachment  `json:"attachments,omitempty"`
	IsRead       bool          `json:"is_read"`
	ReadReceipts []ReadReceipt `json:"read_receipts,omitempty"`
	CreatedAt    time.Time     `json:"created_at" validate:"required"`
}

// OwningThreadID resolves the owning thread from either the flat
// thread_id field (pull responses) or the nested thread object (push
// payloads).
func (m *Message) OwningThreadID() uuid.UUID {
	if m.ThreadID != uuid.Nil {
		return m.ThreadID
	}
	if m.Thread != nil {
		return m.Thread.ID
	}
	return uuid.Nil
}

// Validate runs the tag-driven checks plus the cross-field thread
// ownership rule, which neither json shape can express in a tag.
func (m *Message) Validate() error {
	if err := validateStruct("message", m); err != nil {
		return err
	}
	if m.OwningThreadID() == uuid.Nil {
		return fmt.Errorf("message %s has no owning thread", m.ID)
	}
	return nil
}

// HasReceiptFrom reports whether userID already acknowledged the message.
func (m *Message) HasReceiptFrom(userID uuid.UUID) bool {
	for _, r := range m.ReadReceipts {
		if r.User.ID == userID {
			return true
		}
	}
	return false
}

type Thread struct {
	ID           uuid.UUID  `json:"id" validate:"required"`
	ThreadType   ThreadType `json:"thread_type,omitempty"`
	Name         string     `json:"name,omitempty"`
	Description  string     `json:"description,omitempty"`
	Participants []UserRef  `json:"participants,omitempty"`
	CreatedBy    *UserRef   `json:"created_by,omitempty"`

	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count,omitempty"`
	IsActive    bool      `json:"is_active,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t *Thread) Validate() error {
	return validateStruct("thread", t)
}

// TypingSignal is the ephemeral typing payload exchanged over the
// transport. Not persisted, last write wins.
type TypingSignal struct {
	ThreadID uuid.UUID `json:"thread_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}
