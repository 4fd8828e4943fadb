package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/db"
	"ghostwriter/pkg/generation"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llm/gemini"
	"ghostwriter/pkg/logging"
	"ghostwriter/pkg/prompt"
	"ghostwriter/pkg/ratelimit"
	"ghostwriter/pkg/runner"
	"ghostwriter/pkg/store"
	"ghostwriter/pkg/tracker"
	"ghostwriter/pkg/version"
)

const defaultConfigPath = "configs/ghostwriter.yaml"

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(defaultConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", defaultConfigPath)
		return
	}

	if err := run(context.Background(), defaultConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; the environment itself wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log, &cfg.History)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Ghostwriter started", "version", version.Version, "provider", cfg.LLM.Provider)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	st := store.NewOrderStore(dbConn)
	defer st.Close()

	tr := tracker.New()

	models := runner.NewModelTable(cfg.LLM)
	if err := models.Validate(); err != nil {
		return fmt.Errorf("model table: %w", err)
	}

	provider, err := initProvider(ctx, cfg, tr, models)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Options{
		Limit:             cfg.Limiter.Limit,
		Floor:             cfg.Limiter.Floor,
		MinInterval:       cfg.Limiter.MinInterval.Std(),
		ThrottleThreshold: cfg.Limiter.ThrottleThreshold,
	})

	genClient := generation.NewClient(provider, limiter, tr, generation.Options{
		Timeout:    cfg.Generation.Timeout.Std(),
		MaxRetries: cfg.Generation.MaxRetries,
		BackoffMin: cfg.Generation.BackoffMin.Std(),
		BackoffMax: cfg.Generation.BackoffMax.Std(),
	})

	builder, err := prompt.NewBuilder()
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}

	jobRunner := runner.New(genClient, builder, models, cfg.Runner)
	pool := runner.NewPool(jobRunner, st, cfg.Runner.Workers, cfg.Runner.PollInterval.Std())

	// Safe-mode reductions shrink the worker pool alongside the limiter.
	limiter.Subscribe(pool.Reduce)

	err = pool.Run(ctx)

	stats := pool.Stats()
	slog.Info("Ghostwriter stopped",
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"providers", tr.Snapshot())
	return err
}

func initProvider(ctx context.Context, cfg *config.Config, tr *tracker.Tracker, models *runner.ModelTable) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "mock":
		slog.Warn("Using mock provider, no real generation will happen")
		return llm.NewMock(), nil
	case "gemini", "":
		historyPath := ""
		if cfg.History.Enabled {
			historyPath = cfg.History.Path
		}
		client, err := gemini.NewClient(gemini.Options{
			APIKey:      cfg.LLM.Key,
			HistoryPath: historyPath,
		}, tr)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		if err := client.HealthCheck(ctx); err != nil {
			slog.Warn("Provider health check failed, continuing anyway", "error", err)
		}
		client.ValidateModels(ctx, models.Models())
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
