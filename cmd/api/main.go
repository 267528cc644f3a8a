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

	"snapcode/internal/adapter/repo"
	"snapcode/internal/convert"
	"snapcode/internal/domain"
	"snapcode/internal/http/handlers"
	"snapcode/internal/http/httpapi"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		jobs       domain.JobStore
		ledgerRepo domain.LedgerStore
	)
	embeddedWorker := cfg.DatabaseURL == ""
	if embeddedWorker {
		// Development mode: in-memory stores shared with an in-process
		// scheduler, since no worker process can see this state.
		logger.Warn().Msg("api: DATABASE_URL not set, using in-memory stores with embedded workers")
		jobs = repo.NewJobStoreMemory()
		ledgerRepo = repo.NewLedgerStoreMemory()
	} else {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()
		if err := infra.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("api: schema migration failed")
		}
		jobs = repo.NewJobStorePG(pool)
		ledgerRepo = repo.NewLedgerStorePG(pool)
	}

	files, err := storage.NewFileStore(absStoragePath(cfg.StoragePath))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	guard := ledger.NewGuard(ledgerRepo, logger)
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

	if embeddedWorker {
		sched := scheduler.New(jobs, service, guard, files, nil, schedulerOptions(cfg), logger)
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("api: embedded scheduler stopped")
			}
		}()
	}

	app := handlers.NewApp(service, guard, router, logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, httpapi.Options{RateLimitPerMin: cfg.RateLimitPerMin}))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
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
	// Demo stays last so it only serves when nothing real is configured or
	// everything else is tripped.
	clients = append(clients, provider.NewDemoClient())
	return clients
}

func schedulerOptions(cfg *infra.Config) scheduler.Options {
	return scheduler.Options{
		Workers:          cfg.WorkerCount,
		Lease:            cfg.QueueLease,
		JobTimeout:       cfg.JobTimeout,
		PollInterval:     time.Second,
		BackoffBase:      cfg.BackoffBase,
		BackoffCap:       cfg.BackoffCap,
		ReservationGrace: cfg.ReservationGrace,
		JanitorInterval:  cfg.JanitorInterval,
	}
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
