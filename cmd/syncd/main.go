package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushub/campus-sync/internal/api"
	"github.com/campushub/campus-sync/internal/config"
	"github.com/campushub/campus-sync/internal/session"
	"github.com/campushub/campus-sync/internal/status"
	"github.com/campushub/campus-sync/internal/store"
	syncpkg "github.com/campushub/campus-sync/internal/sync"
	"github.com/campushub/campus-sync/internal/transport"
	"github.com/campushub/campus-sync/pkg/logger"
	"github.com/campushub/campus-sync/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level})

	sess := session.NewStore(cfg.Session.TokenFile)
	if err := sess.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load session token")
	}

	m := metrics.New("campus_sync")

	notifications := store.NewNotificationStore()
	messages := store.NewMessageStore()

	apiClient := api.NewClient(api.Options{
		BaseURL: cfg.API.BaseURL,
		Tokens:  sess,
		Logger:  log,
		Metrics: m,
		Timeout: cfg.API.Timeout(),
	})

	tc := transport.NewWebsocketClient(transport.Options{
		URL:              cfg.Transport.URL,
		Tokens:           sess,
		Logger:           log,
		Metrics:          m,
		Reconnect:        cfg.Transport.Reconnect,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout(),
	})

	syncer := syncpkg.NewSyncer(syncpkg.Options{
		API:             apiClient,
		Transport:       tc,
		Notifications:   notifications,
		Messages:        messages,
		Session:         sess,
		Logger:          log,
		Metrics:         m,
		RepullInterval:  cfg.Sync.RepullInterval(),
		TypingPerSecond: cfg.Sync.TypingPerSecond,
		// Re-authentication is the operator's job; just drop the token.
		OnSessionRejected: func() {
			if err := sess.Clear(); err != nil {
				log.Warn().Err(err).Msg("failed to clear session token")
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	statusHandler := status.NewHandler(syncer, tc, apiClient, notifications, messages)
	statusHandler.RegisterRoutes(engine)

	srv := &http.Server{
		Addr:    cfg.Status.Addr,
		Handler: engine,
	}
	go func() {
		log.Info().Str("addr", cfg.Status.Addr).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	syncer.Teardown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server shutdown failed")
	}
}
