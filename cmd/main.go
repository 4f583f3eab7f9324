package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paperforge/paperforge-backend/internal/data/db"
	"github.com/paperforge/paperforge-backend/internal/data/repos"
	"github.com/paperforge/paperforge-backend/internal/handlers"
	"github.com/paperforge/paperforge-backend/internal/platform/envutil"
	"github.com/paperforge/paperforge-backend/internal/platform/llm"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
	"github.com/paperforge/paperforge-backend/internal/server"
	"github.com/paperforge/paperforge-backend/internal/services"
	"github.com/paperforge/paperforge-backend/internal/sse"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := dbService.DB()

	// Repos
	log.Info("Setting up repos...")
	runsRepo := repos.NewPaperRunRepo(gdb, log)
	artifactsRepo := repos.NewSessionArtifactRepo(gdb, log)
	recordsRepo := repos.NewQuestionRecordRepo(gdb, log)

	// SSE
	sseHub := sse.NewSSEHub(log)
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err := services.NewRedisSSEBus(log)
		if err != nil {
			log.Error("Redis SSE bus init failed", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
			log.Error("Redis SSE forwarder failed", "error", err)
			os.Exit(1)
		}
		emitter = &services.RedisEmitter{Bus: bus}
		log.Info("SSE fan-out via redis enabled")
	}

	// Model client
	aiClient, err := llm.NewClient(log)
	if err != nil {
		log.Error("Could not init model client", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	store := services.NewSessionStore(log, artifactsRepo)
	notifier := services.NewProgressNotifier(log, emitter)
	generation := services.NewPaperGenerationService(log, runsRepo, recordsRepo, store, notifier, aiClient)
	generation.StartWorker(ctx)

	// Handlers + router
	log.Info("Setting up handlers...")
	paperHandler := handlers.NewPaperHandler(generation, store)
	bankHandler := handlers.NewBankHandler(recordsRepo)
	sseHandler := handlers.NewSSEHandler(log, sseHub)

	router := server.NewRouter(server.RouterConfig{
		PaperHandler: paperHandler,
		BankHandler:  bankHandler,
		SSEHandler:   sseHandler,
	})

	port := envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
