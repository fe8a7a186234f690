package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	presenceapi "github.com/holoscene/presence-backend/internal/api/presence"
	"github.com/holoscene/presence-backend/internal/config"
	"github.com/holoscene/presence-backend/internal/middleware"
	"github.com/holoscene/presence-backend/internal/presence"
	"github.com/holoscene/presence-backend/internal/storage"
	"github.com/holoscene/presence-backend/internal/storage/memory"
	valkeystore "github.com/holoscene/presence-backend/internal/storage/valkey"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.UserStore
	if cfg.ValkeyAddr != "" {
		vs, err := valkeystore.NewUserStore(cfg.ValkeyAddr)
		if err != nil {
			log.Fatalf("Failed to connect to Valkey at %s: %v", cfg.ValkeyAddr, err)
		}
		defer vs.Close()
		store = vs
	} else {
		store = memory.NewUserStore()
		log.Println("Using in-memory user store; presence state will not survive a restart")
	}

	registry := presence.NewRegistry(store)

	// Both sweeps stop when the signal context is cancelled.
	go registry.RunLivenessMonitor(ctx, cfg.PingInterval)
	go registry.RunReconciler(ctx, cfg.ReconcileInterval)

	handler := &presenceapi.Handler{Registry: registry, Store: store}

	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.AllowedOrigin))
	presenceapi.RegisterPresenceRoutes(router, handler)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Server started at %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
