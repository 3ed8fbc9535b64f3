package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/config"
	"github.com/NJTYTYTY/Backend-depa/internal/eventsource"
	"github.com/NJTYTYTY/Backend-depa/internal/logging"
	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
	"github.com/NJTYTYTY/Backend-depa/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(cfg *config.Config, srv *server.Server, hub *realtime.Hub, notifier *eventsource.Notifier) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		notifier.Close()

		if err := hub.Shutdown(shutdownCtx); err != nil {
			slog.Error("Hub shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	hub := realtime.NewHub(realtime.HubConfig{
		HeartbeatInterval:        cfg.HeartbeatInterval,
		HeartbeatMissedThreshold: cfg.HeartbeatMissedThreshold,
		HeartbeatGraceWindow:     cfg.HeartbeatGraceWindow,
		SendTimeout:              cfg.SendTimeout,
		MaxClientsPerPond:        cfg.MaxClientsPerPond,
		MaxConnections:           cfg.MaxWebSocketConnections,
	}, clock)

	notifier := eventsource.NewNotifier(hub, clock, cfg.EventQueueSize)

	srv := server.NewServer(cfg, hub, notifier)

	done := runGracefulShutdown(cfg, srv, hub, notifier)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
