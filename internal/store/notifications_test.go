package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/campus-sync/internal/model"
)

func notif(id uuid.UUID, read bool, createdAt time.Time) model.Notification {
	return model.Notification{
		ID:               id,
		NotificationType: model.NotificationTypeSystem,
		Title:            "title",
		Message:          "body",
		IsRead:           read,
		CreatedAt:        createdAt,
	}
}

// unreadInvariant checks that the derived counter matches the
// collection after every operation.
func unreadInvariant(t *testing.T, s *NotificationStore) {
	t.Helper()
	count := 0
	for _, n := range s.Notifications() {
		if !n.IsRead {
			count++
		}
	}
	assert.Equal(t, count, s.UnreadCount())
}

func TestNotificationStoreReplaceAll(t *testing.T) {
	s := NewNotificationStore()
	now := time.Now()

	s.ReplaceAll([]model.Notification{
		notif(uuid.New(), false, now),
		notif(uuid.New(), true, now),
		notif(uuid.New(), false, now),
	})

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.UnreadCount())
	unreadInvariant(t, s)

	// A second replace discards the previous collection entirely.
	s.ReplaceAll([]model.Notification{notif(uuid.New(), true, now)})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreInsertOnePrepends(t *testing.T) {
	s := NewNotificationStore()
	now := time.Now()
	first := notif(uuid.New(), false, now)
	second := notif(uuid.New(), false, now.Add(time.Minute))

	assert.True(t, s.InsertOne(first))
	assert.True(t, s.InsertOne(second))

	items := s.Notifications()
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID, "newest entry goes to the front")
	assert.Equal(t, first.ID, items[1].ID)
	assert.Equal(t, 2, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreInsertOneIdempotent(t *testing.T) {
	s := NewNotificationStore()
	n := notif(uuid.New(), false, time.Now())

	assert.True(t, s.InsertOne(n))
	assert.False(t, s.InsertOne(n), "duplicate delivery must be absorbed")

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreInsertReadEntry(t *testing.T) {
	s := NewNotificationStore()

	s.InsertOne(notif(uuid.New(), true, time.Now()))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreMarkRead(t *testing.T) {
	s := NewNotificationStore()
	readAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return readAt }

	n := notif(uuid.New(), false, time.Now())
	s.InsertOne(n)

	assert.True(t, s.MarkRead(n.ID))
	assert.Equal(t, 0, s.UnreadCount())

	got := s.Notifications()[0]
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	assert.Equal(t, readAt, *got.ReadAt)

	// Monotonic: a second ack is a no-op.
	assert.False(t, s.MarkRead(n.ID))
	assert.Equal(t, 0, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreMarkReadUnknownID(t *testing.T) {
	s := NewNotificationStore()
	s.InsertOne(notif(uuid.New(), false, time.Now()))

	assert.False(t, s.MarkRead(uuid.New()))
	assert.Equal(t, 1, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreMarkAllRead(t *testing.T) {
	s := NewNotificationStore()
	now := time.Now()
	s.ReplaceAll([]model.Notification{
		notif(uuid.New(), false, now),
		notif(uuid.New(), true, now),
		notif(uuid.New(), false, now),
	})

	s.MarkAllRead()

	assert.Equal(t, 0, s.UnreadCount())
	for _, n := range s.Notifications() {
		assert.True(t, n.IsRead)
	}
	unreadInvariant(t, s)

	// Idempotent on an already-acknowledged collection.
	s.MarkAllRead()
	assert.Equal(t, 0, s.UnreadCount())
}

func TestNotificationStoreCounterNeverNegative(t *testing.T) {
	s := NewNotificationStore()
	n := notif(uuid.New(), false, time.Now())
	s.InsertOne(n)

	// MarkAllRead already zeroed the counter; the racing MarkRead on a
	// then-unread snapshot must floor at zero. Force the race by
	// resetting the flag behind the counter's back.
	s.MarkAllRead()
	s.mu.Lock()
	s.byID[n.ID].IsRead = false
	s.mu.Unlock()

	s.MarkRead(n.ID)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestNotificationStoreScenario(t *testing.T) {
	// Pull two entries, push a third, acknowledge one, then all.
	s := NewNotificationStore()
	now := time.Now()
	n1 := notif(uuid.New(), false, now)
	n2 := notif(uuid.New(), true, now)
	n3 := notif(uuid.New(), false, now.Add(time.Second))

	s.ReplaceAll([]model.Notification{n1, n2})
	assert.Equal(t, 1, s.UnreadCount())

	s.InsertOne(n3)
	items := s.Notifications()
	require.Len(t, items, 3)
	assert.Equal(t, []uuid.UUID{n3.ID, n1.ID, n2.ID}, []uuid.UUID{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, 2, s.UnreadCount())

	s.MarkRead(n1.ID)
	assert.Equal(t, 1, s.UnreadCount())
	for _, n := range s.Notifications() {
		if n.ID == n1.ID {
			assert.NotNil(t, n.ReadAt)
		}
	}

	s.MarkAllRead()
	assert.Equal(t, 0, s.UnreadCount())
	unreadInvariant(t, s)
}

func TestNotificationStoreClear(t *testing.T) {
	s := NewNotificationStore()
	s.InsertOne(notif(uuid.New(), false, time.Now()))
	s.SetError(errors.New("pull failed"))

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	assert.NoError(t, s.Err())
}

func TestNotificationStoreLoadingAndError(t *testing.T) {
	s := NewNotificationStore()
	s.InsertOne(notif(uuid.New(), false, time.Now()))

	s.SetLoading(true)
	assert.True(t, s.Loading())
	assert.NoError(t, s.Err())

	pullErr := errors.New("pull failed")
	s.SetError(pullErr)
	assert.False(t, s.Loading())
	assert.Equal(t, pullErr, s.Err())

	// A pull failure must not clear cached data.
	assert.Equal(t, 1, s.Len())
}
