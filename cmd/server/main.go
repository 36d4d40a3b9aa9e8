package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chesslives/config"
	"chesslives/meta"
	"chesslives/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !cfg.Logs.Verbose() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, closeStore, err := meta.Open(ctx, cfg.Store.Kind, cfg.Store.Dir, cfg.DB.DSN())
	cancel()
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Kind, err)
	}
	defer closeStore()

	srv := server.New(server.Options{
		Backend:    cfg.Game.Backend,
		DelayScale: cfg.Game.DelayScale,
		Seed:       cfg.Game.Seed,
		Verbose:    cfg.Logs.Verbose(),
	}, meta.NewLedger(store, cfg.Game.Difficulty))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Router(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Printf("[server] listening on %s (rules=%s store=%s)", cfg.Addr, cfg.Game.Backend, cfg.Store.Kind)
	select {
	case <-sigCtx.Done():
		log.Printf("[server] shutdown signal received: %v", sigCtx.Err())
	case err, ok := <-serverErrCh:
		if ok {
			log.Printf("[server] server error: %v", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[server] graceful shutdown failed: %v", err)
		if closeErr := httpServer.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Printf("[server] forced close failed: %v", closeErr)
		}
	}
}
