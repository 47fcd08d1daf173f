package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/chargegw/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chargegw",
		Short: "HTTP gateway for a vendor-hosted EV charger",
		Long: `chargegw exposes a single charger behind three local HTTP endpoints.
It logs in to the vendor account through a headless browser, caches the
resulting access token, and logs in again only when the token expires or is
rejected.

Configuration is read from CHARGEGW_* environment variables, optionally
layered over the YAML file named by CHARGEGW_CONFIG_FILE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newTokenCmd(),
	)
	return root
}

// loadConfig loads configuration and installs the default logger it
// describes.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
