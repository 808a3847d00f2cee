package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/campus-sync/internal/model"
)

// NotificationStore is the normalized client-side notification
// collection plus its derived unread counter. All mutation goes through
// the operations below; every operation is a total no-op for inputs it
// rejects, because duplicates and stale acknowledgements are expected
// races in a push/pull system, not errors.
//
// Invariant: UnreadCount() == number of stored notifications with
// IsRead == false, after every operation.
type NotificationStore struct {
	mu     sync.RWMutex
	items  []*model.Notification
	byID   map[uuid.UUID]*model.Notification
	unread int

	loading bool
	lastErr error

	now func() time.Time
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		byID: make(map[uuid.UUID]*model.Notification),
		now:  time.Now,
	}
}

// ReplaceAll resets the collection from a pull response and recomputes
// the unread counter from scratch.
func (s *NotificationStore) ReplaceAll(list []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]*model.Notification, 0, len(list))
	s.byID = make(map[uuid.UUID]*model.Notification, len(list))
	s.unread = 0

	for i := range list {
		n := list[i]
		if _, ok := s.byID[n.ID]; ok {
			continue
		}
		s.items = append(s.items, &n)
		s.byID[n.ID] = &n
		if !n.IsRead {
			s.unread++
		}
	}
}

// InsertOne prepends a pushed notification. A record whose id is
// already present is dropped, so duplicate delivery is invisible.
// Returns true if the record was inserted.
func (s *NotificationStore) InsertOne(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[n.ID]; ok {
		return false
	}

	s.items = append([]*model.Notification{&n}, s.items...)
	s.byID[n.ID] = &n
	if !n.IsRead {
		s.unread++
	}
	return true
}

// MarkRead flips one notification to read and stamps read_at. Read
// state is monotonic: already-read entries and unknown ids are no-ops.
// Returns true if the entry transitioned.
func (s *NotificationStore) MarkRead(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok || n.IsRead {
		return false
	}

	now := s.now()
	n.IsRead = true
	n.ReadAt = &now
	// Floored defensively: a MarkRead racing a MarkAllRead must not
	// drive the counter negative.
	if s.unread > 0 {
		s.unread--
	}
	return true
}

// MarkAllRead acknowledges every unread entry and zeroes the counter.
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, n := range s.items {
		if !n.IsRead {
			n.IsRead = true
			readAt := now
			n.ReadAt = &readAt
		}
	}
	s.unread = 0
}

// Clear empties the store, used on session teardown.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.byID = make(map[uuid.UUID]*model.Notification)
	s.unread = 0
	s.loading = false
	s.lastErr = nil
}

// Notifications returns a snapshot copy in store order
// (most-recent-first for pushed entries).
func (s *NotificationStore) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, len(s.items))
	for i, n := range s.items {
		out[i] = *n
	}
	return out
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetLoading records pull-in-flight state for the UI layer.
func (s *NotificationStore) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	if loading {
		s.lastErr = nil
	}
}

// SetError records a pull failure without touching cached data.
func (s *NotificationStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.lastErr = err
}

func (s *NotificationStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *NotificationStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
