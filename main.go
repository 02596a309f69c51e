// Package main runs the marketplace monitor: a polling scanner that renders
// search pages, extracts listings, registers new offers, and pushes
// notifications, plus a small password-gated viewer over the collected data.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketwatch/browse"
	"marketwatch/config"
	"marketwatch/extract"
	"marketwatch/filter"
	"marketwatch/push"
	"marketwatch/scan"
	"marketwatch/server"
	"marketwatch/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open offer store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	source, closeSource := newSource(cfg, logger)
	defer closeSource()

	extractor, err := extract.New(cfg.SiteOrigin, cfg.ResultCap, logger)
	if err != nil {
		logger.Error("Failed to build extractor", "error", err)
		os.Exit(1)
	}

	dispatcher := push.New(newProvider(cfg, logger), logger)

	controller := scan.New(&scan.Config{
		Source:     source,
		Extractor:  extractor,
		Store:      st,
		Notifier:   dispatcher,
		Queries:    cfg.Queries,
		SearchBase: cfg.SearchBaseURL,
		FilterOpts: filter.Options{
			NegativeKeywords: cfg.NegativeKeywords,
			AllowZeroPrice:   cfg.AllowZeroPrice,
		},
		Interval: cfg.PollInterval(),
		Logger:   logger,
	})

	srv := server.New(&server.Config{
		Store:         st,
		Poller:        controller,
		Logger:        logger,
		AdminPassword: cfg.AdminPassword,
	})

	go controller.Run(ctx)

	logger.Info("Viewer available", "url", cfg.BaseURL)

	if err := srv.Serve(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// offerStore is the store surface the rest of the program needs.
type offerStore interface {
	scan.Registrar
	server.Store
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (offerStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Postgres offer store")
		return pg, pg.Close, nil
	}

	local, err := store.OpenLocal(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("No DATABASE_URL set, using local file store", "dir", cfg.DataDir)
	return local, func() {}, nil
}

// newSource picks the document source. A browser renderer that fails to start
// degrades to plain HTTP fetching rather than aborting startup.
func newSource(cfg *config.Config, logger *slog.Logger) (scan.Source, func()) {
	settle := browse.Settle{
		Delay:       cfg.SettleDelay(),
		ScrollSteps: cfg.SettleScrollStep,
		StepDelay:   time.Second,
	}

	if cfg.Renderer == "playwright" {
		renderer, err := browse.NewRenderer(browse.RendererOptions{
			UserAgent:  cfg.UserAgent,
			NavTimeout: cfg.NavTimeout(),
			Settle:     settle,
			Proxy:      cfg.ProxyURL,
		}, logger)
		if err == nil {
			return renderer, func() {
				if err := renderer.Close(); err != nil {
					logger.Warn("Failed to close browser renderer", "error", err)
				}
			}
		}
		logger.Warn("Browser renderer unavailable, falling back to HTTP fetching", "error", err)
	}

	fetcher := browse.NewFetcher(cfg.NavTimeout(), cfg.UserAgent, logger)
	return fetcher, func() {}
}

// newProvider selects the push channel from configured credentials. Pushover
// wins when both are configured; with neither, deliveries are logged only.
func newProvider(cfg *config.Config, logger *slog.Logger) push.Provider {
	if cfg.PushoverToken != "" && cfg.PushoverUserKey != "" {
		logger.Info("Push notifications via Pushover")
		return push.NewPushoverProvider(cfg.PushoverToken, cfg.PushoverUserKey, logger)
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := push.NewTelegramProvider(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warn("Failed to initialize Telegram, using mock provider", "error", err)
			return push.NewMockProvider(logger)
		}
		logger.Info("Push notifications via Telegram")
		return tg
	}
	logger.Info("No push credentials configured, using mock provider")
	return push.NewMockProvider(logger)
}
