// internal/api/api.go
// Provides StartServer: wires NATS, Redis, the chat service and the hub, and
// serves the websocket and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/erilali/chatwire/internal/chat"
	"github.com/erilali/chatwire/internal/config"
	"github.com/erilali/chatwire/internal/hub"
	"github.com/erilali/chatwire/internal/logger"
	"github.com/erilali/chatwire/internal/protocol"
	"github.com/erilali/chatwire/internal/store"
)

const (
	shutdownTimeout   = 5 * time.Second
	healthPingTimeout = 2 * time.Second
)

// StartServer runs the server until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg config.Config, serverLogger *logger.Logger) error {
	nc, js := connectNATS(cfg.NATS, serverLogger)
	if nc != nil {
		defer nc.Close()
	}

	stores := chat.MemoryStores(store.WithSessionTTL(cfg.Session.TTL.Duration))
	var sessions pinger
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		redisSessions := store.NewRedisSessions(rdb, cfg.Session.TTL.Duration)
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		err := redisSessions.Ping(pingCtx)
		cancel()
		if err != nil {
			serverLogger.Errorf("Error connecting to Redis at %s: %v", cfg.Redis.Addr, err)
			serverLogger.Warn("Running with in-memory sessions. Sessions will not survive a restart.")
		} else {
			serverLogger.Infof("Session store: Redis at %s", cfg.Redis.Addr)
			stores.Sessions = redisSessions
			sessions = redisSessions
		}
	}

	svc := chat.NewService(stores,
		chat.WithBcryptCost(cfg.Auth.BcryptCost),
		chat.WithLogger(logger.NewLogger("chat")),
	)
	h := hub.NewHub(svc, nc, js, logger.NewLogger("hub"), cfg.Server)
	svc.SetEvents(h)
	if err := h.SubscribeEvents(); err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	go h.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWs)
	mux.Handle("/health", healthHandler(nc, js, sessions, h))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		serverLogger.Infof("Server started at %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	case <-ctx.Done():
	}

	serverLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// connectNATS returns nil values when NATS is disabled or unreachable; the
// server then delivers events in-process only.
func connectNATS(cfg config.NATSConfig, serverLogger *logger.Logger) (*nats.Conn, nats.JetStreamContext) {
	if !cfg.Enabled {
		serverLogger.Info("NATS disabled, delivering events in-process")
		return nil, nil
	}

	serverLogger.Infof("Connecting to NATS at %s", cfg.URL)
	nc, err := nats.Connect(cfg.URL, nats.Name("chatwire"))
	if err != nil {
		serverLogger.Errorf("Error connecting to NATS: %v", err)
		serverLogger.Warn("Running without NATS connection. Events reach only this instance.")
		return nil, nil
	}
	serverLogger.Info("Successfully connected to NATS")

	js, err := nc.JetStream()
	if err != nil {
		serverLogger.Errorf("Error getting JetStream context: %v", err)
		serverLogger.Warn("Running without JetStream. Events will not be retained.")
		return nc, nil
	}
	if err := ensureEventStream(js, cfg.StreamMaxAge.Duration); err != nil {
		serverLogger.Errorf("Error setting up stream %s: %v", hub.EventStream, err)
		serverLogger.Warn("Running without JetStream. Events will not be retained.")
		return nc, nil
	}
	serverLogger.Infof("Stream %s ready", hub.EventStream)
	return nc, js
}

// ensureEventStream creates the events stream or updates its retention.
func ensureEventStream(js nats.JetStreamContext, maxAge time.Duration) error {
	streamConfig := &nats.StreamConfig{
		Name:     hub.EventStream,
		Subjects: []string{hub.EventSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   maxAge,
	}
	if _, err := js.StreamInfo(streamConfig.Name); err != nil {
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}
	if _, err := js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type connectionCounter interface {
	Connected() int
}

// healthHandler reports the state of every backing service. Any of the
// arguments may be nil.
func healthHandler(nc *nats.Conn, js nats.JetStreamContext, sessions pinger, clients connectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		natsStatus := "disconnected"
		if nc != nil && nc.Status() == nats.CONNECTED {
			natsStatus = "connected"
		}
		health := map[string]interface{}{
			"status":            "ok",
			"nats":              natsStatus,
			"redis":             "disabled",
			"protocol_versions": []int{int(protocol.V1), int(protocol.V2)},
		}
		if clients != nil {
			health["clients"] = clients.Connected()
		}

		if sessions != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
			err := sessions.Ping(ctx)
			cancel()
			if err != nil {
				health["redis"] = map[string]interface{}{"error": err.Error()}
				health["status"] = "degraded"
			} else {
				health["redis"] = "connected"
			}
		}

		if js != nil {
			info, err := js.StreamInfo(hub.EventStream)
			if err == nil {
				health["jetstream"] = map[string]interface{}{
					hub.EventStream: map[string]interface{}{
						"messages":  info.State.Msgs,
						"bytes":     info.State.Bytes,
						"subjects":  info.Config.Subjects,
						"retention": fmt.Sprintf("%v", info.Config.MaxAge),
					},
				}
			} else {
				health["jetstream"] = map[string]interface{}{
					hub.EventStream: map[string]interface{}{"error": err.Error()},
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}
}
