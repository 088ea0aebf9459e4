package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"codesync/internal/api"
	"codesync/internal/config"
	"codesync/internal/exec"
	_ "codesync/internal/exec/jdoodle"
	_ "codesync/internal/exec/judge0"
	_ "codesync/internal/exec/sandbox"
	"codesync/internal/jobs"
	"codesync/internal/ratelimit"
	"codesync/internal/repositories"
	"codesync/internal/repositories/mongo"
	"codesync/internal/room_management"
	"codesync/internal/routers"
	"codesync/internal/services"
	"codesync/internal/session"
	"codesync/internal/utils"
)

// initAuditDB opens the audit database and migrates the execution and room
// history tables
func initAuditDB(pg config.PostgresConfig) (*repositories.ExecutionRepository, *repositories.HistoryRepository, error) {
	db, err := gorm.Open(postgres.Open(pg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	executions := repositories.NewExecutionRepository(db)
	if err := executions.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	history := repositories.NewHistoryRepository(db)
	if err := history.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return executions, history, nil
}

// initProvider builds the configured execution provider. A nil provider
// leaves every run failing with PROVIDER_NOT_CONFIGURED.
func initProvider(cfg *config.Config) (exec.Provider, error) {
	if cfg.ExecProvider == "" {
		return nil, nil
	}
	return exec.NewProvider(cfg.ExecProvider, exec.Settings{
		Endpoint:   cfg.ExecEndpoint,
		APIKey:     cfg.ExecAPIKey,
		APISecret:  cfg.ExecAPISecret,
		SandboxURL: cfg.SandboxURL,
		HTTPClient: &http.Client{Timeout: cfg.ExecTimeout + 5*time.Second},
	})
}

func corsOptions(origins []string) cors.Options {
	credentials := true
	if len(origins) == 0 {
		origins = []string{"*"}
		credentials = false
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: credentials,
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("execProvider", cfg.ExecProvider),
		zap.Duration("gracePeriod", cfg.GracePeriod))

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	// membership store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(startCtx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	roomStore := repositories.NewRoomRepository(rdb)

	// question catalog
	mongoClient, err := mongo.NewClient(startCtx, cfg.MongoURI, cfg.QuestionsDBName)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	questions, err := mongo.NewQuestionRepo(startCtx, mongoClient, cfg.QuestionsCollection)
	if err != nil {
		logger.Fatal("Failed to open question catalog", zap.Error(err))
	}
	if cfg.SeedQuestions {
		if err := mongo.SeedIfEmpty(startCtx, questions, logger); err != nil {
			logger.Fatal("Failed to seed question catalog", zap.Error(err))
		}
	}

	// execution audit and room history (optional)
	var recorder room_management.Recorder
	var historySub *services.RoomHistorySubscriber
	if cfg.Postgres.Enabled() {
		auditRepo, historyRepo, err := initAuditDB(cfg.Postgres)
		if err != nil {
			logger.Error("Failed to initialize database, execution audit will be disabled", zap.Error(err))
		} else {
			recorder = auditRepo
			historySub = services.NewRoomHistorySubscriber(rdb, historyRepo, logger)
			logger.Info("Execution audit enabled")
		}
	}

	provider, providerErr := initProvider(cfg)
	if providerErr != nil {
		logger.Warn("Failed to initialize execution provider, runs will be rejected", zap.Error(providerErr))
		provider = nil
	} else if provider == nil {
		logger.Warn("No execution provider configured",
			zap.Strings("available", exec.RegisteredProviders()))
	}
	gateway := exec.NewGateway(provider, cfg.ExecTimeout, cfg.MaxCodeBytes, logger).WithConfigError(providerErr)

	hub := session.NewHub()
	registry := session.NewRegistry()

	rooms := room_management.NewRoomManager(room_management.Deps{
		Store:       roomStore,
		Hub:         hub,
		Registry:    registry,
		Catalog:     questions,
		Executor:    gateway,
		Recorder:    recorder,
		GracePeriod: cfg.GracePeriod,
		Logger:      logger,
	})

	handlers := api.NewHandlers(api.Options{
		Rooms:          rooms,
		Catalog:        questions,
		Gateway:        gateway,
		Recorder:       recorder,
		Hub:            hub,
		Registry:       registry,
		Store:          roomStore,
		Logger:         logger,
		AllowedOrigins: cfg.CORSOrigins,
	})

	limiter := ratelimit.NewSlidingWindow(rdb, cfg.RateLimitWindow, cfg.RateLimitMax, logger)
	router := routers.New(handlers, limiter, routers.ExecuteBodyLimit(cfg.MaxCodeBytes))

	subCtx, stopSub := context.WithCancel(context.Background())
	defer stopSub()
	if historySub != nil {
		go func() {
			if err := historySub.Run(subCtx, nil); err != nil {
				logger.Error("room history subscriber stopped", zap.Error(err))
			}
		}()
	}

	reaper := jobs.NewRoomReaperJob(rooms, cfg.ReaperSchedule, cfg.RoomIdleTTL, logger)
	if err := reaper.Start(); err != nil {
		logger.Error("Failed to start room reaper", zap.Error(err))
	}

	serverAddr := ":" + cfg.Port

	// http server with timeouts; writes must outlast a full provider call
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      cors.Handler(corsOptions(cfg.CORSOrigins))(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ExecTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("codesync starting", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shutdown the server
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("codesync shutting down...")

	reaper.Stop()
	rooms.Shutdown()
	stopSub()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := mongoClient.Disconnect(ctx); err != nil {
		logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Warn("failed to close Redis client", zap.Error(err))
	}

	logger.Info("codesync exited")
}
