package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/campushub/campus-sync/internal/model"
)

// Typing indicators are ephemeral; entries expire on their own if the
// stop-typing signal never arrives.
const (
	typingTTL     = 6 * time.Second
	typingSweep   = 15 * time.Second
	typingKeySep  = "|"
	typingKeySize = 2
)

// MessageStore holds the thread collection and one ordered message
// sequence per thread. Threads are kept in descending recency order:
// appending a message moves its thread to the front, relative order of
// the rest is untouched.
type MessageStore struct {
	mu       sync.RWMutex
	threads  []*model.Thread
	messages map[uuid.UUID][]*model.Message

	activeThread uuid.UUID
	typing       *gocache.Cache

	loading bool
	lastErr error

	now func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[uuid.UUID][]*model.Message),
		typing:   gocache.New(typingTTL, typingSweep),
		now:      time.Now,
	}
}

// ReplaceThreads bulk-sets the thread collection, preserving the order
// the server provided (already sorted by recency).
func (s *MessageStore) ReplaceThreads(list []model.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads = make([]*model.Thread, 0, len(list))
	seen := make(map[uuid.UUID]struct{}, len(list))
	for i := range list {
		t := list[i]
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		s.threads = append(s.threads, &t)
	}
}

// InsertThread prepends a newly created thread. Duplicate ids are
// dropped.
func (s *MessageStore) InsertThread(t model.Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findThreadLocked(t.ID) >= 0 {
		return false
	}
	s.threads = append([]*model.Thread{&t}, s.threads...)
	return true
}

// ReplaceThreadMessages bulk-sets the message sequence for one thread.
func (s *MessageStore) ReplaceThreadMessages(threadID uuid.UUID, list []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]*model.Message, 0, len(list))
	seen := make(map[uuid.UUID]struct{}, len(list))
	for i := range list {
		m := list[i]
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		msgs = append(msgs, &m)
	}
	s.messages[threadID] = msgs
}

// AppendMessage appends a message to its thread's sequence, updates the
// thread's last_message/updated_at projection and moves the thread to
// the front. A message id already present in the sequence is dropped,
// so a record arriving both via push and a later pull stays single.
// Returns true if the message was appended.
func (s *MessageStore) AppendMessage(m model.Message) bool {
	threadID := m.OwningThreadID()
	if threadID == uuid.Nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages[threadID] {
		if existing.ID == m.ID {
			return false
		}
	}

	s.messages[threadID] = append(s.messages[threadID], &m)

	if idx := s.findThreadLocked(threadID); idx >= 0 {
		t := s.threads[idx]
		last := m
		t.LastMessage = &last
		t.UpdatedAt = m.CreatedAt

		s.threads = append(s.threads[:idx], s.threads[idx+1:]...)
		s.threads = append([]*model.Thread{t}, s.threads...)
	}
	return true
}

// MarkMessageRead records a read receipt for userID on one message.
// The sender cannot receipt their own message, and a second receipt
// from the same user is dropped. Returns true if a receipt was added.
func (s *MessageStore) MarkMessageRead(threadID, messageID, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages[threadID] {
		if m.ID != messageID {
			continue
		}
		if m.Sender.ID == userID || m.HasReceiptFrom(userID) {
			return false
		}
		m.IsRead = true
		m.ReadReceipts = append(m.ReadReceipts, model.ReadReceipt{
			User:   model.UserRef{ID: userID},
			ReadAt: s.now(),
		})
		return true
	}
	return false
}

// SetTyping upserts or deletes the ephemeral typing entry for
// (threadID, userID). Last write wins.
func (s *MessageStore) SetTyping(threadID, userID uuid.UUID, isTyping bool) {
	key := typingKey(threadID, userID)
	if isTyping {
		s.typing.Set(key, s.now(), typingTTL)
		return
	}
	s.typing.Delete(key)
}

// TypingUsers returns the users currently typing in a thread with
// their last-typing timestamps.
func (s *MessageStore) TypingUsers(threadID uuid.UUID) map[uuid.UUID]time.Time {
	prefix := threadID.String() + typingKeySep
	out := make(map[uuid.UUID]time.Time)
	for key, item := range s.typing.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.SplitN(key, typingKeySep, typingKeySize)
		if len(parts) != typingKeySize {
			continue
		}
		userID, err := uuid.Parse(parts[1])
		if err != nil {
			continue
		}
		if at, ok := item.Object.(time.Time); ok {
			out[userID] = at
		}
	}
	return out
}

// SetActiveThread records which thread the UI is focused on.
func (s *MessageStore) SetActiveThread(threadID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeThread = threadID
}

func (s *MessageStore) ActiveThread() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeThread
}

// ClearAll empties threads, messages and typing state, used on session
// teardown.
func (s *MessageStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads = nil
	s.messages = make(map[uuid.UUID][]*model.Message)
	s.activeThread = uuid.Nil
	s.typing.Flush()
	s.loading = false
	s.lastErr = nil
}

// Threads returns a snapshot copy in recency order.
func (s *MessageStore) Threads() []model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = *t
	}
	return out
}

// Messages returns a snapshot copy of one thread's sequence in append
// order.
func (s *MessageStore) Messages(threadID uuid.UUID) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[threadID]
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

func (s *MessageStore) ThreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *MessageStore) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	if loading {
		s.lastErr = nil
	}
}

func (s *MessageStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.lastErr = err
}

func (s *MessageStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *MessageStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *MessageStore) findThreadLocked(id uuid.UUID) int {
	for i, t := range s.threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func typingKey(threadID, userID uuid.UUID) string {
	return threadID.String() + typingKeySep + userID.String()
}
