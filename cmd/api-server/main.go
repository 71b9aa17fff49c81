package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sungwon/mailrelay/internal/api"
	"github.com/sungwon/mailrelay/internal/compose"
	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/delivery"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/ratelimit"
	"github.com/sungwon/mailrelay/internal/recipient"
	"github.com/sungwon/mailrelay/internal/render"
	"github.com/sungwon/mailrelay/internal/transport"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Str("transport", cfg.Transport.Type).Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Transport
	tr, err := transport.New(ctx, transport.ConfigFrom(cfg), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create transport")
	}
	signer, err := transport.NewSigner(cfg.DKIM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load DKIM key")
	}
	if signer == nil {
		log.Warn().Msg("DKIM private key not configured; messages will be sent unsigned")
	} else {
		log.Info().Str("domain", signer.Domain()).Str("selector", cfg.DKIM.Selector).Msg("DKIM signing enabled")
	}

	registry := transport.NewRegistry()
	registry.Register(tr)
	log.Info().Strs("transports", registry.List()).Msg("transports registered")
	health := transport.NewHealthChecker(registry, cfg.Transport.CheckInterval, log)
	health.Start()
	defer health.Stop()

	// Pipeline
	validator := recipient.NewValidator(nil, cfg.Resolver.Timeout, log)
	composer := compose.NewComposer(cfg.Sender, validator, render.NewRenderer(cfg.Sender.Domain), log)
	gateway := delivery.NewGateway(tr, signer, log)
	svc := mailer.NewService(composer, gateway, cfg.Bulk, log)

	// Rate limiter
	limiter, closeLimiter, err := ratelimit.NewFromConfig(ctx, cfg.RateLimit, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create rate limiter")
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			log.Error().Err(err).Msg("failed to close rate limiter")
		}
	}()

	realIP, err := api.TrustedProxyRealIP(cfg.API.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid api.trusted_proxies")
	}

	routerCfg := api.RouterConfig{
		Mailer:           svc,
		Log:              log,
		RealIP:           realIP,
		RateLimit:        ratelimit.Middleware(limiter, log),
		BulkWriteTimeout: cfg.BulkWriteTimeout(),
		Health:           health,
		ActiveTransport:  tr.GetName(),
		MaxBodyBytes:     cfg.API.MaxBodyBytes,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	router := api.NewRouter(routerCfg)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
