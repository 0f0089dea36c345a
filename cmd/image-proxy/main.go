package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/image-optimizer/pkg/config"
	"github.com/Sternrassler/image-optimizer/pkg/logging"
	"github.com/Sternrassler/image-optimizer/pkg/metrics"
	"github.com/rs/zerolog/log"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("IMAGE_PROXY_CONFIG"), "path to a config file (toml, yaml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logging.Setup(logCfg)
	logger := logging.NewLogger("server")

	metrics.SetBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise services")
	}
	defer svc.Close()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("version", version).
			Str("cache_backend", cfg.Cache.Backend).
			Bool("cache_enabled", svc.pipeline.CacheEnabled()).
			Bool("object_store", cfg.StoreEnabled()).
			Msg("Starting image proxy")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
