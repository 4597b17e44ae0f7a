package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/formpilot/formpilot/internal/answergen"
	"github.com/formpilot/formpilot/internal/api"
	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/engine"
	"github.com/formpilot/formpilot/internal/matcher"
	"github.com/formpilot/formpilot/internal/observability"
	"github.com/formpilot/formpilot/internal/repository/postgres"
	rediscache "github.com/formpilot/formpilot/internal/repository/redis"
	"github.com/formpilot/formpilot/internal/resolver"
	"github.com/formpilot/formpilot/internal/services/runner"
	"github.com/formpilot/formpilot/internal/storage"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(string(cfg.Env), cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting FormPilot API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
	)

	// Connect to PostgreSQL
	db, err := postgres.New(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
	)

	// Connect to Redis (optional)
	cache, err := rediscache.New(cfg.Redis)
	if err != nil {
		logger.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
		cache = nil
	} else {
		defer cache.Close()
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	// Screenshot storage (optional)
	var screenshots engine.ScreenshotStore
	if cfg.Engine.CaptureScreenshot {
		minioClient, err := storage.NewMinIOClient(cfg.Storage)
		if err != nil {
			logger.Warn("Failed to create MinIO client, screenshots disabled", zap.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := minioClient.EnsureBucket(ctx); err != nil {
				logger.Warn("Failed to ensure screenshot bucket, screenshots disabled", zap.Error(err))
			} else {
				screenshots = minioClient
				logger.Info("Screenshot storage ready", zap.String("bucket", cfg.Storage.Bucket))
			}
			cancel()
		}
	}

	metrics := observability.NewMetrics(cfg.App.Name)

	// Question matcher
	questionMatcher := buildMatcher(cfg, cache, metrics, logger)

	// Answer generator
	generator := buildGenerator(cfg, metrics, logger)

	res := resolver.New(questionMatcher, generator, logger)

	// Browser driver
	driver, err := engine.NewPlaywrightDriver(engine.DriverOptions{
		Headless: cfg.Browser.Headless,
		SlowMo:   cfg.Browser.SlowMo,
	})
	if err != nil {
		logger.Fatal("Failed to launch browser", zap.Error(err))
	}
	defer driver.Close()

	engineOpts := []engine.Option{}
	if screenshots != nil {
		engineOpts = append(engineOpts, engine.WithScreenshotStore(screenshots))
	}
	eng := engine.New(driver, res, cfg.Engine.EngineSettings(), logger, engineOpts...)

	// Repositories and run service
	repos := postgres.NewRepositories(db.DB)

	var runCache runner.Cache
	if cache != nil {
		runCache = cache
	}
	runService := runner.New(eng, repos.Profiles, repos.Mappings, repos.FillRuns,
		runCache, metrics, logger, runner.Options{
			MaxConcurrentRuns: cfg.Features.MaxConcurrentRuns,
			EnableLearning:    cfg.Features.EnableLearning,
		})

	router := api.NewRouter(api.RouterConfig{
		Repos:       repos,
		Cache:       cache,
		Runner:      runService,
		Metrics:     metrics,
		Logger:      logger,
		Security:    cfg.Security,
		RateLimit:   cfg.RateLimits,
		Development: cfg.IsDevelopment(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}

// buildMatcher returns the embedding matcher when an embedding backend is
// configured, falling back to the keyword matcher otherwise.
func buildMatcher(cfg *config.Config, cache *rediscache.Cache, metrics *observability.Metrics, logger *zap.Logger) matcher.Matcher {
	threshold := cfg.Engine.MatchThreshold

	if cfg.Embedding.Provider == "keyword" || cfg.Embedding.APIKey == "" {
		logger.Info("Question matcher running in keyword mode")
		return matcher.NewKeywordMatcher(threshold)
	}

	embCfg := matcher.EmbeddingConfig{
		APIKey:       cfg.Embedding.APIKey,
		Model:        cfg.Embedding.Model,
		BaseURL:      cfg.Embedding.BaseURL,
		CacheTTL:     cfg.Embedding.CacheTTL,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		RateLimitRPM: cfg.Embedding.RateLimitRPM,
	}

	var redisClient *redis.Client
	if cache != nil {
		redisClient = cache.Client()
	}
	embedder := matcher.NewEmbeddingService(embCfg, redisClient, metrics, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := matcher.NewEmbeddingMatcher(ctx, embedder, threshold, logger)
	if err != nil {
		logger.Warn("Embedding matcher unavailable, falling back to keyword mode", zap.Error(err))
		return matcher.NewKeywordMatcher(threshold)
	}

	logger.Info("Question matcher ready", zap.String("model", cfg.Embedding.Model))
	return m
}

// buildGenerator chains the Claude generator with the template fallback.
func buildGenerator(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) answergen.Generator {
	template := answergen.NewTemplateGenerator()

	if cfg.Claude.APIKey == "" {
		logger.Info("Answer generator running in template mode")
		return template
	}

	claude, err := answergen.NewClaudeGenerator(answergen.ClaudeConfig{
		APIKey:       cfg.Claude.APIKey,
		BaseURL:      cfg.Claude.BaseURL,
		Model:        cfg.Claude.Model,
		Timeout:      cfg.Claude.Timeout,
		RateLimitRPM: cfg.Claude.RateLimitRPM,
		CacheTTL:     cfg.Claude.CacheTTL,
		MaxRetries:   cfg.Claude.MaxRetries,
	}, metrics, logger)
	if err != nil {
		logger.Warn("Claude generator unavailable, using templates only", zap.Error(err))
		return template
	}

	logger.Info("Answer generator ready", zap.String("model", cfg.Claude.Model))
	return answergen.WithFallback(claude, template, logger)
}

// initLogger creates a configured zap logger
func initLogger(env, level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
