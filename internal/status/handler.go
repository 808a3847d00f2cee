package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campushub/campus-sync/internal/api"
	"github.com/campushub/campus-sync/internal/store"
	syncpkg "github.com/campushub/campus-sync/internal/sync"
	"github.com/campushub/campus-sync/internal/transport"
)

// Handler serves the agent's local status surface: health, sync state
// and Prometheus metrics. Read-only; all writes go through the syncer.
type Handler struct {
	syncer        *syncpkg.Syncer
	transport     transport.Client
	apiClient     *api.Client
	notifications *store.NotificationStore
	messages      *store.MessageStore
	startedAt     time.Time
}

func NewHandler(
	syncer *syncpkg.Syncer,
	tc transport.Client,
	apiClient *api.Client,
	notifications *store.NotificationStore,
	messages *store.MessageStore,
) *Handler {
	return &Handler{
		syncer:        syncer,
		transport:     tc,
		apiClient:     apiClient,
		notifications: notifications,
		messages:      messages,
		startedAt:     time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/status", h.status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

func (h *Handler) status(c *gin.Context) {
	resp := gin.H{
		"sync_state":          h.syncer.State().String(),
		"transport_connected": h.transport.Connected(),
		"pull_breaker":        h.apiClient.BreakerState(),
		"unread_count":        h.notifications.UnreadCount(),
		"notification_count":  h.notifications.Len(),
		"thread_count":        h.messages.ThreadCount(),
	}
	if err := h.notifications.Err(); err != nil {
		resp["notifications_error"] = err.Error()
	}
	if err := h.messages.Err(); err != nil {
		resp["messages_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
