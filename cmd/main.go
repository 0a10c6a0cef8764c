package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minbar-live/translation-service/config"
	"github.com/minbar-live/translation-service/internal/postgres"
	"github.com/minbar-live/translation-service/internal/provider"
	"github.com/minbar-live/translation-service/internal/service"
	"github.com/minbar-live/translation-service/internal/session"
	httpx "github.com/minbar-live/translation-service/internal/transport/http"
	"github.com/minbar-live/translation-service/internal/transport/ws"
	"github.com/minbar-live/translation-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting translation-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	prefRepo := postgres.NewPreferenceRepository(db.Pool)
	historyRepo := postgres.NewHistoryRepository(db.Pool)

	// --- provider chain ---
	adapters := make([]provider.Adapter, 0, len(cfg.Fallback.Providers))
	for _, p := range cfg.Fallback.Providers {
		switch p.Name {
		case "mymemory":
			adapters = append(adapters, provider.NewMyMemory(p.AdapterConfig()))
		case "libretranslate":
			adapters = append(adapters, provider.NewLibreTranslate(p.AdapterConfig()))
		case "lingva":
			adapters = append(adapters, provider.NewLingva(p.AdapterConfig()))
		default:
			slog.Warn("unknown provider in config, skipping", "name", p.Name)
		}
	}
	chain := provider.NewChain(adapters...)

	// --- services & registry ---
	reg := session.NewRegistry(nil, historyRepo)
	reg.SetIdleTimeout(cfg.Session.IdleTimeoutOr(10 * time.Minute))
	reg.SetQueueSize(cfg.Session.QueueSize)

	prefSvc := service.NewPreferenceService(prefRepo, reg)
	reg.SetPreferenceSource(prefSvc)

	trSvc := service.NewTranslationService(chain)

	grace := cfg.Fallback.GraceWindowOr(5 * time.Second)
	sched := service.NewFallbackScheduler(reg, chain, grace, cfg.Fallback.Preferred)
	if sched.Enabled() {
		reg.OnUtterance(sched.UtteranceAppended)
	}

	go reg.Run(ctx)

	// --- transports ---
	wsServer := ws.NewServer(reg)
	handler := httpx.NewHandler(reg, prefSvc, trSvc, historyRepo)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	reg.Shutdown(ctxShutdown)
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
