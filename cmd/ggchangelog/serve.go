package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	"github.com/saint0x/ggchangelog/pkg/ai"
	"github.com/saint0x/ggchangelog/pkg/config"
	"github.com/saint0x/ggchangelog/pkg/github"
	"github.com/saint0x/ggchangelog/pkg/lock"
	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/openai"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/progress"
	"github.com/saint0x/ggchangelog/pkg/retry"
	"github.com/saint0x/ggchangelog/pkg/server"
	"github.com/saint0x/ggchangelog/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the changelog API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func handleServe() error {
	logger := newLogger()

	logger.Loading("Starting ggchangelog server...")

	// Validate environment
	logger.Loading("Validating environment...")
	env, err := config.Validate(logger)
	if err != nil {
		logger.Error("Environment validation failed: %v", err)
		return err
	}
	if env.Debug && !logger.IsDebug() {
		logger = log.New(true)
	}
	logger.Success("Environment validated")
	logger.Debug("Debug mode: %v", logger.IsDebug())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Create a channel to track if we're already shutting down
	shuttingDown := make(chan struct{}, 1)

	go func() {
		for sig := range sigCh {
			select {
			case <-shuttingDown:
				// Second signal, force exit
				logger.Error("Force stopping...")
				os.Exit(1)
			default:
				// First signal, graceful shutdown
				logger.Info("Received signal: %v", sig)
				logger.Info("Press Ctrl+C again to force stop")
				shuttingDown <- struct{}{}
				cancel()
			}
		}
	}()

	// Initialize components
	logger.Loading("Initializing components...")

	level := gormlogger.Warn
	if logger.IsDebug() {
		level = gormlogger.Info
	}
	db, err := store.Open(store.Config{
		Path:     env.DatabasePath,
		LogLevel: level,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Success("Database ready (%s)", env.DatabasePath)

	policy := retry.Policy{
		Attempts:  env.RetryAttempts,
		BaseDelay: env.RetryBaseDelay,
		MaxDelay:  30 * time.Second,
	}

	ghClient, err := github.New(logger, github.Config{
		Token:             env.GitHubToken,
		BaseURL:           env.GitHubBaseURL,
		RequestsPerSecond: env.HostRateLimit,
		Retry:             policy,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}
	logger.Success("GitHub client ready")

	opts := []openai.Option{
		openai.WithModel(env.OpenAIModel),
		openai.WithTimeout(env.RequestTimeout),
	}
	if env.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(env.OpenAIBaseURL))
	}
	aiGen := ai.New(logger, openai.NewClient(env.OpenAIKey, opts...), ai.Config{
		Model:             env.OpenAIModel,
		Temperature:       env.OpenAITemperature,
		ClassifyBatchSize: env.ClassifyBatchSize,
		FormatBatchSize:   env.FormatBatchSize,
		Retry:             policy,
		PromptsFile:       env.PromptsFile,
	})
	logger.Success("AI generator ready (%s)", env.OpenAIModel)

	var locker lock.Locker = lock.NewMemory()
	if env.RedisURL != "" {
		rl, err := lock.NewRedisFromURL(ctx, env.RedisURL, env.JobTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rl.Close()
		locker = rl
		logger.Success("Redis run lock ready")
	}

	registry := progress.NewRegistry(logger, env.ProgressGrace)

	gen := pipeline.New(logger, pipeline.Deps{
		Host:       ghClient,
		Store:      db,
		Classifier: aiGen,
		Formatter:  aiGen,
		Locker:     locker,
		Progress:   registry,
	}, pipeline.Config{
		ChunkSize:     env.IngestChunkSize,
		Concurrency:   env.HostConcurrency,
		MaxPages:      env.MaxCommitPages,
		DefaultWindow: env.DefaultWindow,
	})

	// Create and start server
	srv, err := server.New(logger, gen, db, registry, server.Config{
		Port:           env.Port,
		JobTimeout:     env.JobTimeout,
		AllowedOrigins: env.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
