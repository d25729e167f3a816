// Command katscan-proxy serves KatAPI collections as paginated, filterable
// JSON behind a shared Redis cache and upstream budget.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/katscan/pkg/client"
	"github.com/Sternrassler/katscan/pkg/config"
	"github.com/Sternrassler/katscan/pkg/logging"
	"github.com/Sternrassler/katscan/pkg/pagination"
)

func main() {
	cfg, err := config.Load(os.Getenv("KATSCAN_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "katscan-proxy: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "katscan-proxy: invalid config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Service = "katscan-proxy"
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Proxy stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	redisClient, err := cfg.NewRedisClient()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", redisClient.Options().Addr).Msg("Connected to Redis")
	} else {
		logger.Warn().Msg("Redis disabled: no response cache, budget tracked per process")
	}

	api, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		return fmt.Errorf("create katapi client: %w", err)
	}
	defer api.Close()

	var status *client.Client
	if cfg.API.StatusURL != "" {
		status, err = client.New(cfg.StatusClientConfig())
		if err != nil {
			return fmt.Errorf("create status client: %w", err)
		}
		defer status.Close()
	}

	srv := newServer(api, status, pagination.NewBatchFetcher(api, cfg.BatchConfig()), redisClient, logger)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("upstream", cfg.API.BaseURL).
			Str("user_agent", cfg.API.UserAgent).
			Msg("Starting proxy server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down proxy server")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
