package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/riftbridge/custom-match-core/internal/api"
	"github.com/riftbridge/custom-match-core/internal/config"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository/postgres"
	"github.com/riftbridge/custom-match-core/internal/service"
	"github.com/riftbridge/custom-match-core/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.BackendID == "" {
		cfg.BackendID = "backend-" + uuid.NewString()[:8]
	}
	log.Printf("starting backend %s", cfg.BackendID)

	ctx := context.Background()

	// Initialize key-value store
	store, err := kv.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	repos := postgres.NewRepositories(db)

	// Session registry and gateway hub reference each other: the registry
	// consults the hub's live table to detect zombie locks.
	var hub *gateway.Hub
	registry := session.NewRegistry(store, session.LiveFunc(func(id string) bool {
		return hub != nil && hub.Has(id)
	}), cfg.HeartbeatTimeout)
	hub = gateway.NewHub(registry)
	hub.SetHeartbeat(cfg.HeartbeatInterval, cfg.HeartbeatTimeout)

	outbox := session.NewOutbox(store, cfg.MaxPendingEventsPerPlayer)
	broadcaster := gateway.NewBroadcaster(hub, registry, outbox)
	bridge := gateway.NewBridge(registry, hub, cfg.RPCTimeout)

	// Initialize services
	services := service.NewServices(cfg, repos, store, broadcaster, bridge)

	router := gateway.NewRouter(
		registry, outbox, bridge, store,
		services.Queue, services.Acceptance, services.Draft, services.Voting,
		services.Supervisor, services.Player,
		cfg.CriticalConfirmTimeout,
	)
	hub.SetDispatcher(router)

	services.Start(ctx)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      api.NewRouter(services, hub, repos),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	// Close client connections, stop timers, release match leases and the
	// liveness beacon so another backend adopts our matches quickly.
	hub.Stop()
	services.Stop(shutdownCtx)
	if err := store.Close(); err != nil {
		log.Printf("failed to close kv store: %v", err)
	}

	log.Println("Server stopped")
}
