package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/katscan/pkg/client"
	"github.com/Sternrassler/katscan/pkg/config"
	"github.com/Sternrassler/katscan/pkg/logging"
)

// annotationTUI marks commands that own the terminal; their logs are
// discarded unless --log-file is given.
const annotationTUI = "katscan/tui"

type app struct {
	configPath string
	logLevel   string
	logFile    string

	cfg     *config.Config
	api     *client.Client
	redis   *redis.Client
	logger  zerolog.Logger
	closers []io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:               "katscan",
		Short:             "Browse, filter and export KRC-721 collections from KatAPI",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "katscan.yaml", "config file (missing file means defaults)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		a.collectionsCmd(),
		a.browseCmd(),
		a.facetsCmd(),
		a.exportCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	switch {
	case a.logFile != "":
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		logCfg.Output = f
		logCfg.Pretty = false
	case cmd.Annotations[annotationTUI] != "":
		logCfg.Output = io.Discard
	}
	logging.Setup(logCfg)
	a.logger = logging.NewLogger("cli")

	redisClient, err := cfg.NewRedisClient()
	if err != nil {
		return err
	}
	if redisClient != nil {
		if err := redisClient.Ping(cmd.Context()).Err(); err != nil {
			a.logger.Warn().Err(err).Msg("Redis unreachable, continuing without shared cache")
			redisClient.Close()
			redisClient = nil
		} else {
			a.redis = redisClient
			a.closers = append(a.closers, redisClient)
		}
	}

	api, err := client.New(cfg.ClientConfig(a.redis))
	if err != nil {
		return fmt.Errorf("create katapi client: %w", err)
	}
	a.api = api
	return nil
}

func (a *app) close() error {
	if a.api != nil {
		a.api.Close()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
