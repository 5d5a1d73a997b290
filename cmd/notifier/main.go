package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noahxzhu/redmine-notify/internal/config"
	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/notifier"
	"github.com/noahxzhu/redmine-notify/internal/render"
	"github.com/noahxzhu/redmine-notify/internal/retry"
	"github.com/noahxzhu/redmine-notify/internal/source"
	"github.com/noahxzhu/redmine-notify/internal/storage"
	"github.com/noahxzhu/redmine-notify/internal/web"
	"github.com/noahxzhu/redmine-notify/internal/webhook"
	"github.com/noahxzhu/redmine-notify/internal/worker"
)

func main() {
	path := config.DefaultPath()
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init Storage
	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.SinceDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to open storage")
	}
	defer func() { _ = store.Close() }()

	httpClient := newHTTPClient(cfg.HTTPTimeout)

	src := source.NewClient(source.Options{
		SnapshotURL:  cfg.SourceURL,
		Format:       cfg.SourceFormat,
		Encoding:     cfg.SourceEncoding,
		FeedBaseURL:  cfg.FeedBaseURL,
		FeedKey:      cfg.FeedKey,
		Location:     cfg.Location,
		SnapshotPath: cfg.SnapshotPath,
		Retry:        retry.Default(),
		HTTPClient:   httpClient,
		Logger:       log,
	})

	var notes render.NoteFetcher
	if cfg.FeedEnabled() {
		notes = src
	}

	hook := webhook.NewClient(webhook.Options{
		HTTPClient: httpClient,
		Retry:      retry.Default(),
		Logger:     log,
	})
	n := notifier.New(hook, render.New(notes), notifier.Channels{
		Each:  cfg.EachWebhookURL,
		Daily: cfg.DailyWebhookURL,
		Error: cfg.ErrorWebhookURL,
	}, log)

	// Init Worker
	w := worker.NewWorker(src, store, n, worker.Schedule{
		IntervalMinutes: cfg.LoopInterval,
		DailyHour:       cfg.DailyHour,
		DailyMinute:     cfg.DailyMinutes,
		DigestDays:      cfg.DigestDays,
		Location:        cfg.Location,
	}, log)

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           web.NewServer(store, w, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting status server")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	log.Info().
		Str("source", cfg.SourceFormat).
		Int("interval_min", cfg.LoopInterval).
		Int("daily_hour", cfg.DailyHour).
		Int("daily_minutes", cfg.DailyMinutes).
		Str("timezone", cfg.Location.String()).
		Msg("Starting redmine-notify")

	w.Start(ctx)

	log.Info().Msg("Shutting down...")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
	}
}

// newHTTPClient gives connections a short dial timeout and bounds the whole request.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}
