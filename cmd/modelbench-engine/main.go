package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelbench-ai/modelbench/engine/internal/config"
	"github.com/modelbench-ai/modelbench/engine/internal/endpoint"
	"github.com/modelbench-ai/modelbench/engine/internal/eval"
	"github.com/modelbench-ai/modelbench/engine/internal/tokenizer"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("modelbench-engine %s\n", version)
		os.Exit(0)
	}

	// Parse flags
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	configPath := flag.String("config", "modelbench.json", "run configuration file")
	requestsPath := flag.String("requests", "-", "JSONL requests file, or - for stdin")
	outPath := flag.String("out", "-", "JSONL results file, or - for stdout")
	flag.Parse()

	// Configure logger
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid log level: %s\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Handle signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("engine starting", "version", version)
	if err := run(ctx, *configPath, *requestsPath, *outPath, logger); err != nil {
		logger.Error("engine error", "err", err)
		os.Exit(1)
	}
	logger.Info("engine run complete")
}

func run(ctx context.Context, configPath, requestsPath, outPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tok, err := tokenizer.NewTiktoken(cfg.Tokenizer.Encoding)
	if err != nil {
		return err
	}

	client, cleanup, err := buildClient(ctx, cfg.Endpoint, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := eval.New(client, tok, eval.Config{
		SplitCount: cfg.Run.SplitCount,
		BatchSize:  cfg.Run.BatchSize,
		Concurrent: cfg.Run.Concurrent,
		WantLogits: cfg.Run.WantLogits,
		Logger:     logger,
	})

	requests, err := readRequests(requestsPath)
	if err != nil {
		return err
	}

	results, err := runAll(ctx, engine, requests)
	if err != nil {
		return err
	}

	if err := writeResults(outPath, results); err != nil {
		return err
	}

	stats := engine.Stats()
	logger.Info("run statistics",
		"requests_dispatched", stats.RequestsDispatched,
		"batches_completed", stats.BatchesCompleted,
		"batches_failed", stats.BatchesFailed,
	)
	return nil
}

// buildClient resolves the endpoint configuration into a generate client
// plus a cleanup function. Created endpoints are deleted on cleanup; reused
// and direct endpoints are left alone.
func buildClient(ctx context.Context, cfg config.EndpointConfig, logger *slog.Logger) (endpoint.Generator, func(), error) {
	cleanup := func() {}
	baseURL := cfg.BaseURL

	if cfg.Reuse != "" || cfg.Create != nil {
		lc, err := endpoint.NewLifecycleClient(cfg.ControlPlaneURL, cfg.Token)
		if err != nil {
			return nil, nil, err
		}

		var ep *endpoint.Endpoint
		if cfg.Create != nil {
			logger.Info("deploying endpoint", "name", cfg.Create.Name, "repository", cfg.Create.Repository)
			ep, err = lc.Create(ctx, *cfg.Create)
		} else {
			logger.Info("reusing endpoint", "name", cfg.Reuse)
			ep, err = lc.Reuse(ctx, cfg.Reuse)
		}
		if err != nil {
			return nil, nil, err
		}

		if err := ep.WaitReady(ctx, endpoint.DefaultReadyTimeout); err != nil {
			return nil, nil, err
		}
		logger.Info("endpoint ready", "name", ep.Name, "url", ep.URL)
		baseURL = ep.URL

		if cfg.Create != nil {
			cleanup = func() {
				dctx, dcancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer dcancel()
				if err := ep.Delete(dctx); err != nil {
					logger.Warn("endpoint delete failed", "name", ep.Name, "err", err)
					return
				}
				logger.Warn("endpoint deleted; recreate it to run again", "name", ep.Name)
			}
		}
	}

	client, err := endpoint.NewClient(baseURL, cfg.Token)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var generator endpoint.Generator = client
	if cfg.RequestsPerMinute > 0 {
		generator, err = endpoint.NewRateLimitedClient(generator, endpoint.RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			Burst:             endpoint.DefaultRateLimitConfig.Burst,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if cfg.CachePath != "" {
		cached, err := endpoint.NewCachedClient(generator, cfg.CachePath, 256)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		inner := cleanup
		cleanup = func() {
			cached.Close()
			inner()
		}
		generator = cached
	}

	return generator, cleanup, nil
}
