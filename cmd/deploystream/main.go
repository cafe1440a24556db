package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpx "github.com/splax/deploystream/internal/http"
	"github.com/splax/deploystream/internal/poller"
	"github.com/splax/deploystream/internal/profile"
	"github.com/splax/deploystream/internal/runner"
	"github.com/splax/deploystream/internal/service/deploy"
	"github.com/splax/deploystream/pkg/config"
	"github.com/splax/deploystream/pkg/logger"
	"github.com/splax/deploystream/pkg/telemetry"
)

func main() {
	cfg := config.LoadServerConfig()
	log := logger.New("deploystream", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := profile.NewFileResolver(cfg.ConfigFile, cfg.DeployType, cfg.DeployHeading, func(err error) {
		log.Warn("deployment config unavailable, using built-in profiles", "path", cfg.ConfigFile, "error", err)
	})
	help := profile.NewHelpResolver(cfg.HelpContentFile, func(err error) {
		log.Warn("help content unavailable, using built-in guide", "path", cfg.HelpContentFile, "error", err)
	})

	opts := deploy.Options{
		Timings: deploy.Timings{
			PollInterval:      cfg.PollInterval,
			SettleIterations:  cfg.SettleIterations,
			MonitorTimeout:    cfg.MonitorTimeout,
			PreCommandTimeout: cfg.PreCommandTimeout,
			SyncTimeout:       cfg.SyncTimeout,
			LogSourceTimeout:  cfg.LogSourceTimeout,
			PollTimeout:       cfg.PollTimeout,
			JoinTimeout:       cfg.JoinTimeout,
		},
		KillOnDisconnect: cfg.KillOnDisconnect,
		TelemetryTimeout: cfg.CallbackTimeout,
	}

	if strings.EqualFold(cfg.StatusBackend, "kubernetes") {
		cluster, err := poller.NewClusterSource(cfg.PollTimeout)
		if err != nil {
			log.Error("failed to create kubernetes client", "error", err)
			os.Exit(1)
		}
		opts.StatusSource = func([]string, runner.Masker) poller.Source { return cluster }
		log.Info("pod status from kubernetes api")
	}

	if url := strings.TrimSpace(cfg.CallbackURL); url != "" {
		emitter, err := telemetry.NewEmitter(url, cfg.CallbackToken, &http.Client{Timeout: cfg.CallbackTimeout})
		if err != nil {
			log.Error("failed to create deployment callback", "error", err)
			os.Exit(1)
		}
		opts.Telemetry = emitter
	}

	deploySvc := deploy.New(resolver, runner.New(log), log, opts)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
		} else {
			limiter = redisLimiter
			log.Info("redis rate limiter enabled", "addr", addr)
		}
	}

	router := httpx.NewRouter(log, deploySvc, resolver, help, httpx.Options{
		StaticDir:          cfg.StaticDir,
		DryRun:             cfg.DryRun,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		Limiter:            limiter,
		AuthSecret:         cfg.AuthTokenSecret,
	})
	defer router.Close()

	// WriteTimeout stays unset: deployment streams run for many minutes.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("deploystream server starting",
			"addr", cfg.Addr,
			"env", cfg.Environment,
			"config_file", cfg.ConfigFile,
			"dry_run", cfg.DryRun,
			"auth", cfg.AuthTokenSecret != "",
		)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("deploystream server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
