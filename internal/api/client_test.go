package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/campus-sync/internal/model"
	apperrors "github.com/campushub/campus-sync/pkg/errors"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func newTestClient(srv *httptest.Server, token string) *Client {
	return NewClient(Options{
		BaseURL: srv.URL,
		Tokens:  staticTokens(token),
		Logger:  zerolog.Nop(),
		Timeout: 2 * time.Second,
	})
}

func TestFetchNotifications(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/notifications/", r.URL.Path)
		assert.Equal(t, "Token abc", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]model.Notification{{
			ID:               id,
			NotificationType: model.NotificationTypeClubInvitation,
			Title:            "invited",
			IsRead:           false,
			CreatedAt:        time.Now(),
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	list, err := c.FetchNotifications(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, model.NotificationTypeClubInvitation, list[0].NotificationType)
}

func TestFetchNotificationsDropsInvalidRecords(t *testing.T) {
	valid := model.Notification{ID: uuid.New(), Title: "kept", CreatedAt: time.Now()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One record missing its id, one missing created_at, one valid.
		json.NewEncoder(w).Encode([]model.Notification{
			{Title: "no id", CreatedAt: time.Now()},
			{ID: uuid.New(), Title: "no timestamp"},
			valid,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	list, err := c.FetchNotifications(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, valid.ID, list[0].ID)
}

func TestFetchThreadsDropsInvalidRecords(t *testing.T) {
	valid := model.Thread{ID: uuid.New(), Name: "kept"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Thread{
			{Name: "no id"},
			valid,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	threads, err := c.FetchThreads(context.Background())

	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, valid.ID, threads[0].ID)
}

func TestMarkNotificationRead(t *testing.T) {
	id := uuid.New()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	require.NoError(t, c.MarkNotificationRead(context.Background(), id))
	assert.Equal(t, "/notifications/"+id.String()+"/mark_read/", gotPath)

	require.NoError(t, c.MarkAllNotificationsRead(context.Background()))
}

func TestFetchThreadsAndMessages(t *testing.T) {
	threadID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messaging/threads/":
			json.NewEncoder(w).Encode([]model.Thread{{ID: threadID, ThreadType: model.ThreadTypeGroup}})
		case "/messaging/threads/" + threadID.String() + "/messages/":
			json.NewEncoder(w).Encode([]model.Message{{
				ID:        uuid.New(),
				ThreadID:  threadID,
				Content:   "hi",
				CreatedAt: time.Now(),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")

	threads, err := c.FetchThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, threadID, threads[0].ID)

	msgs, err := c.FetchThreadMessages(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestSendMessage(t *testing.T) {
	threadID := uuid.New()
	msgID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messaging/threads/"+threadID.String()+"/messages/", r.URL.Path)

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello there", req.Content)
		assert.NotNil(t, req.Attachments)

		json.NewEncoder(w).Encode(model.Message{
			ID:        msgID,
			Thread:    &model.ThreadRef{ID: threadID},
			Content:   req.Content,
			CreatedAt: time.Now(),
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	msg, err := c.SendMessage(context.Background(), threadID, SendMessageRequest{Content: "hello there"})

	require.NoError(t, err)
	assert.Equal(t, msgID, msg.ID)
	assert.Equal(t, threadID, msg.OwningThreadID())
}

func TestCreateThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messaging/threads/", r.URL.Path)

		var req CreateThreadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.ThreadTypeProject, req.ThreadType)

		json.NewEncoder(w).Encode(model.Thread{ID: uuid.New(), ThreadType: req.ThreadType, Name: req.Name})
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	thread, err := c.CreateThread(context.Background(), CreateThreadRequest{
		ThreadType: model.ThreadTypeProject,
		Name:       "robotics",
	})

	require.NoError(t, err)
	assert.Equal(t, "robotics", thread.Name)
}

func TestUnauthorizedTriggersHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv, "expired")
	var called atomic.Bool
	c.SetUnauthorizedHandler(func() { called.Store(true) })

	_, err := c.FetchNotifications(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.True(t, called.Load())
}

func TestPullBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	for i := 0; i < 5; i++ {
		_, err := c.FetchNotifications(context.Background())
		require.Error(t, err)
	}

	assert.Equal(t, "open", c.BreakerState())

	// With the breaker open the request fails fast without hitting
	// the server.
	_, err := c.FetchThreads(context.Background())
	require.Error(t, err)
}

func TestServerErrorSurfacedWithoutPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad payload"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, "abc")
	err := c.MarkAllNotificationsRead(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
