package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapcode/internal/adapter/repo"
	"snapcode/internal/convert"
	"snapcode/internal/infra"
	"snapcode/internal/ledger"
	"snapcode/internal/provider"
	"snapcode/internal/scheduler"
	"snapcode/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker: DATABASE_URL is required; the in-memory mode only works embedded in the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	if err := infra.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema migration failed")
	}

	files, err := storage.NewFileStore(absStoragePath(cfg.StoragePath))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	jobs := repo.NewJobStorePG(pool)
	guard := ledger.NewGuard(repo.NewLedgerStorePG(pool), logger)
	router := provider.NewRouter(buildProviders(cfg), provider.RouterOptions{
		MaxSwitches:      cfg.MaxProviderSwitches,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.ProviderCooldown,
	}, logger)

	service := convert.NewService(
		jobs, guard, storage.NewImageStore(files), files, router, nil,
		convert.ServiceOptions{MaxAttempts: cfg.MaxAttempts, ArtifactTTL: cfg.ArtifactTTL},
		logger,
	)

	sched := scheduler.New(jobs, service, guard, files, nil, scheduler.Options{
		Workers:          cfg.WorkerCount,
		Lease:            cfg.QueueLease,
		JobTimeout:       cfg.JobTimeout,
		PollInterval:     time.Second,
		BackoffBase:      cfg.BackoffBase,
		BackoffCap:       cfg.BackoffCap,
		ReservationGrace: cfg.ReservationGrace,
		JanitorInterval:  cfg.JanitorInterval,
	}, logger)

	// Expose scheduler metrics on a side port so the pool can be scraped
	// independently of the api process.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("worker: metrics listener failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func buildProviders(cfg *infra.Config) []provider.Client {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	var clients []provider.Client
	if cfg.OpenAIAPIKey != "" {
		clients = append(clients, provider.NewOpenAIClient(provider.OpenAIOptions{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			CostPerCall: cfg.OpenAICost,
			HTTPClient:  httpClient,
		}))
	}
	if cfg.AnthropicAPIKey != "" {
		clients = append(clients, provider.NewAnthropicClient(provider.AnthropicOptions{
			APIKey:      cfg.AnthropicAPIKey,
			BaseURL:     cfg.AnthropicBaseURL,
			Model:       cfg.AnthropicModel,
			CostPerCall: cfg.AnthropicCost,
			HTTPClient:  httpClient,
		}))
	}
	if cfg.GeminiAPIKey != "" {
		clients = append(clients, provider.NewGeminiClient(provider.GeminiOptions{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.GeminiBaseURL,
			Model:       cfg.GeminiModel,
			CostPerCall: cfg.GeminiCost,
			HTTPClient:  httpClient,
		}))
	}
	clients = append(clients, provider.NewDemoClient())
	return clients
}

func absStoragePath(path string) string {
	if path == "" {
		path = "./storage"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return path
}
