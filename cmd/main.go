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

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/db"
	"github.com/bespoken/bespoken-backend/internal/handlers"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/middleware"
	"github.com/bespoken/bespoken-backend/internal/repos"
	"github.com/bespoken/bespoken-backend/internal/scenarios"
	"github.com/bespoken/bespoken-backend/internal/server"
	"github.com/bespoken/bespoken-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	cfg := config.Load(log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	turnRepo := repos.NewTurnRepo(thePG, log)

	// Scenario data
	scenarioStore, err := scenarios.NewStore(log)
	if err != nil {
		log.Error("Could not load scenario data", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log, cfg)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	transcriptionService, err := services.NewTranscriptionService(log)
	if err != nil {
		log.Error("Could not init TranscriptionService", "error", err)
		os.Exit(1)
	}
	defer transcriptionService.Close()
	openaiClient, err := services.NewOpenAIClient(log, cfg)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	feedbackService := services.NewFeedbackService(log, openaiClient, cfg)
	contextWindowService := services.NewContextWindowService(log, scenarioStore, turnRepo, cfg)
	turnPipeline := services.NewTurnPipeline(
		log,
		cfg,
		scenarioStore,
		bucketService,
		transcriptionService,
		feedbackService,
		contextWindowService,
		turnRepo,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		turnPipeline.StartPersistWorker(workerCtx)
		close(workerDone)
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	uploadHandler := handlers.NewUploadHandler(log, turnPipeline)
	scenarioHandler := handlers.NewScenarioHandler(log, scenarioStore, turnRepo)

	routerCfg := server.RouterConfig{
		CORSOrigins:     cfg.CORSOrigins,
		MaxBodyBytes:    cfg.MaxContentLengthBytes(),
		UploadHandler:   uploadHandler,
		ScenarioHandler: scenarioHandler,
	}
	if cfg.JWTSecretKey != "" {
		identityService, idErr := services.NewIdentityService(log, cfg)
		if idErr != nil {
			log.Error("Could not init IdentityService", "error", idErr)
			os.Exit(1)
		}
		routerCfg.AuthMiddleware = middleware.RequireAuth(log, identityService)
	}

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Stop accepting requests on SIGINT/SIGTERM, let in-flight ones
	// finish, then drain the persistence queue before exiting.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Server shutdown failed", "error", err)
		}
	}()

	fmt.Printf("Server listening on :%s\n", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("Server failed", "error", err)
	}
	stopWorker()
	<-workerDone
}
