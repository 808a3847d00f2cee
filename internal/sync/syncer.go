package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/campushub/campus-sync/internal/api"
	"github.com/campushub/campus-sync/internal/model"
	"github.com/campushub/campus-sync/internal/store"
	"github.com/campushub/campus-sync/internal/transport"
	"github.com/campushub/campus-sync/pkg/metrics"
)

// State is the synchronization lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateSyncing
	StateLive
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Session gates whether synchronization starts at all.
type Session interface {
	Valid() bool
}

// Options configures a Syncer.
type Options struct {
	API           *api.Client
	Transport     transport.Client
	Notifications *store.NotificationStore
	Messages      *store.MessageStore
	Session       Session
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics

	// OnSessionRejected runs after a server 401 has torn the syncer
	// down, e.g. to discard the persisted token.
	OnSessionRejected func()

	// RepullInterval enables periodic re-pull while the transport is
	// down. Zero disables it.
	RepullInterval time.Duration
	// TypingPerSecond throttles outbound typing signals. Zero means
	// one per second.
	TypingPerSecond float64
}

// Syncer bridges the transport client's push events into the entity
// stores: one initial pull on session start, push events layered on
// top. UI code goes through the Syncer for user-initiated actions and
// reads from the stores; it never touches the transport directly.
type Syncer struct {
	apiClient     *api.Client
	transport     transport.Client
	notifications *store.NotificationStore
	messages      *store.MessageStore
	session       Session
	log           zerolog.Logger
	metrics       *metrics.Metrics

	repullInterval time.Duration
	typingLimiter  *rate.Limiter

	mu      sync.RWMutex
	state   State
	started bool
	cancel  context.CancelFunc
}

func NewSyncer(opts Options) *Syncer {
	perSecond := opts.TypingPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	s := &Syncer{
		apiClient:      opts.API,
		transport:      opts.Transport,
		notifications:  opts.Notifications,
		messages:       opts.Messages,
		session:        opts.Session,
		log:            opts.Logger.With().Str("component", "sync").Logger(),
		metrics:        opts.Metrics,
		repullInterval: opts.RepullInterval,
		typingLimiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
	// A server 401 invalidates the session wholesale: tear down from
	// wherever the rejected call came from, then let the caller react.
	if opts.API != nil {
		rejected := opts.OnSessionRejected
		opts.API.SetUnauthorizedHandler(func() {
			s.log.Warn().Msg("session rejected by server, tearing down")
			s.Teardown()
			if rejected != nil {
				rejected()
			}
		})
	}
	return s
}

// Start runs the initial pull and then opens the push channel. Without
// a valid session it does nothing and the syncer stays disconnected.
// A second call while already started is suppressed so subscriptions
// are never duplicated. Pull failures do not block going live; the
// stores just start empty.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Debug().Msg("sync already initialized, ignoring start")
		return
	}
	if !s.session.Valid() {
		s.mu.Unlock()
		s.log.Info().Msg("no valid session, staying disconnected")
		return
	}
	s.started = true
	s.state = StateSyncing
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info().Msg("session available, starting sync")
	s.pullAll(ctx)

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.state = StateLive
	s.mu.Unlock()

	s.transport.Connect(ctx)
	s.subscribe()
	s.log.Info().Bool("transport_connected", s.transport.Connected()).Msg("sync live")

	if s.repullInterval > 0 {
		go s.repullLoop(ctx)
	}
}

// Teardown moves to the terminal state from anywhere: the transport is
// disconnected (deregistering every handler before returning) and both
// stores are cleared. Idempotent.
func (s *Syncer) Teardown() {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.state = StateTornDown
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.transport.Disconnect()
	s.notifications.Clear()
	s.messages.ClearAll()
	s.observeGauges()
	s.log.Info().Msg("sync torn down")
}

// State returns the current lifecycle state.
func (s *Syncer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MarkNotificationRead acknowledges one notification on the server and
// mirrors the transition into the store.
func (s *Syncer) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	if err := s.apiClient.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	s.applyIfActive(func() {
		s.notifications.MarkRead(id)
	})
	s.observeGauges()
	return nil
}

// MarkAllNotificationsRead acknowledges everything on the server and
// in the store.
func (s *Syncer) MarkAllNotificationsRead(ctx context.Context) error {
	if err := s.apiClient.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	s.applyIfActive(func() {
		s.notifications.MarkAllRead()
	})
	s.observeGauges()
	return nil
}

// SendMessage posts a message over REST (the transport emit is an
// enhancement, the POST is the source of truth) and appends the
// server-assigned record. The append is idempotent, so the same record
// arriving later as a push event is absorbed.
func (s *Syncer) SendMessage(ctx context.Context, threadID uuid.UUID, content string, attachments []model.Attachment) (*model.Message, error) {
	msg, err := s.apiClient.SendMessage(ctx, threadID, api.SendMessageRequest{
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}
	s.applyIfActive(func() {
		s.messages.AppendMessage(*msg)
	})
	transport.SendMessage(s.transport, threadID, content, attachments)
	return msg, nil
}

// CreateThread creates a thread, prepends it to the store and joins
// its room.
func (s *Syncer) CreateThread(ctx context.Context, req api.CreateThreadRequest) (*model.Thread, error) {
	thread, err := s.apiClient.CreateThread(ctx, req)
	if err != nil {
		return nil, err
	}
	s.applyIfActive(func() {
		s.messages.InsertThread(*thread)
		s.messages.SetActiveThread(thread.ID)
	})
	transport.JoinRoom(s.transport, thread.ID.String())
	s.observeGauges()
	return thread, nil
}

// OpenThread pulls a thread's messages, marks it active and joins its
// room.
func (s *Syncer) OpenThread(ctx context.Context, threadID uuid.UUID) error {
	msgs, err := s.apiClient.FetchThreadMessages(ctx, threadID)
	if err != nil {
		s.messages.SetError(err)
		return err
	}
	s.applyIfActive(func() {
		s.messages.ReplaceThreadMessages(threadID, msgs)
		s.messages.SetActiveThread(threadID)
	})
	transport.JoinRoom(s.transport, threadID.String())
	return nil
}

// CloseThread leaves the thread's room and clears the active marker.
func (s *Syncer) CloseThread(threadID uuid.UUID) {
	transport.LeaveRoom(s.transport, threadID.String())
	if s.messages.ActiveThread() == threadID {
		s.messages.SetActiveThread(uuid.Nil)
	}
}

// MarkMessageRead records the local read receipt and, when it applied,
// tells the server over the transport. Self-receipts and double
// receipts never leave the client.
func (s *Syncer) MarkMessageRead(threadID, messageID, userID uuid.UUID) {
	if s.messages.MarkMessageRead(threadID, messageID, userID) {
		transport.MarkRead(s.transport, messageID)
	}
}

// Typing forwards a typing signal, rate-limited so keystroke-driven
// callers do not flood the channel. Stop-typing always goes through.
func (s *Syncer) Typing(threadID uuid.UUID, isTyping bool) {
	if isTyping && !s.typingLimiter.Allow() {
		return
	}
	transport.Typing(s.transport, threadID, isTyping)
}

func (s *Syncer) pullAll(ctx context.Context) {
	s.notifications.SetLoading(true)
	notifs, err := s.apiClient.FetchNotifications(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("notification pull failed")
		s.notifications.SetError(err)
	} else {
		s.applyIfActive(func() {
			s.notifications.ReplaceAll(notifs)
			s.notifications.SetLoading(false)
		})
	}

	s.messages.SetLoading(true)
	threads, err := s.apiClient.FetchThreads(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("thread pull failed")
		s.messages.SetError(err)
	} else {
		s.applyIfActive(func() {
			s.messages.ReplaceThreads(threads)
			s.messages.SetLoading(false)
		})
	}

	s.observeGauges()
}

func (s *Syncer) subscribe() {
	s.transport.On(transport.EventNotification, s.handleNotification)
	s.transport.On(transport.EventMessage, s.handleMessage)
	s.transport.On(transport.EventTyping, s.handleTyping)
	s.transport.On(transport.EventEventUpdate, s.logOnly(transport.EventEventUpdate))
	s.transport.On(transport.EventBookingUpdate, s.logOnly(transport.EventBookingUpdate))
}

func (s *Syncer) handleNotification(data json.RawMessage) {
	s.countPush(transport.EventNotification)

	n, err := decodeNotification(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed notification event")
		return
	}

	s.applyIfActive(func() {
		if !s.notifications.InsertOne(*n) {
			s.countDuplicate(transport.EventNotification)
		}
	})
	s.observeGauges()
}

func (s *Syncer) handleMessage(data json.RawMessage) {
	s.countPush(transport.EventMessage)

	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed message event")
		return
	}
	if err := msg.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("dropping invalid message event")
		return
	}

	s.applyIfActive(func() {
		if !s.messages.AppendMessage(msg) {
			s.countDuplicate(transport.EventMessage)
		}
	})
	s.observeGauges()
}

func (s *Syncer) handleTyping(data json.RawMessage) {
	s.countPush(transport.EventTyping)

	var sig model.TypingSignal
	if err := json.Unmarshal(data, &sig); err != nil || sig.ThreadID == uuid.Nil || sig.UserID == uuid.Nil {
		s.log.Debug().Msg("dropping malformed typing event")
		return
	}

	s.applyIfActive(func() {
		s.messages.SetTyping(sig.ThreadID, sig.UserID, sig.IsTyping)
	})
}

func (s *Syncer) logOnly(event string) transport.Handler {
	return func(data json.RawMessage) {
		s.countPush(event)
		s.log.Info().Str("event", event).RawJSON("data", data).Msg("informational push event")
	}
}

// repullLoop periodically re-pulls while the transport is down, so a
// permanently unimplemented push channel still converges on server
// state.
func (s *Syncer) repullLoop(ctx context.Context) {
	ticker := time.NewTicker(s.repullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.State() != StateLive || s.transport.Connected() {
			continue
		}
		s.log.Debug().Msg("transport down, re-pulling")
		s.pullAll(ctx)
	}
}

// applyIfActive runs a store mutation unless the syncer is torn down,
// so a pull or push resolving after teardown cannot repopulate the
// stores.
func (s *Syncer) applyIfActive(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateTornDown {
		return
	}
	fn()
}

func (s *Syncer) countPush(event string) {
	if s.metrics != nil {
		s.metrics.PushEventsTotal.WithLabelValues(event).Inc()
	}
}

func (s *Syncer) countDuplicate(event string) {
	if s.metrics != nil {
		s.metrics.DuplicateDropped.WithLabelValues(event).Inc()
	}
}

func (s *Syncer) observeGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.UnreadNotifications.Set(float64(s.notifications.UnreadCount()))
	s.metrics.Threads.Set(float64(s.messages.ThreadCount()))
}

// decodeNotification accepts both the bare notification payload and
// the {"notification": {...}} envelope; both shapes exist in the wild.
func decodeNotification(data json.RawMessage) (*model.Notification, error) {
	var envelope struct {
		Notification *model.Notification `json:"notification"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Notification != nil {
		if err := envelope.Notification.Validate(); err != nil {
			return nil, err
		}
		return envelope.Notification, nil
	}

	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}
