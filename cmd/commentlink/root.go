package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/commentlink/config"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "commentlink",
		Short:         "Shareable deep links to social media comments",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("COMMENTLINK_CONFIG"), "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", envOr("COMMENTLINK_LOG_LEVEL", "info"), "log level: debug, info, warn, error")

	root.AddCommand(
		a.openCmd(),
		a.serveCmd(),
		a.mcpCmd(),
		a.shareCmd(),
		a.parseCmd(),
		a.scanCmd(),
		a.resolveCmd(),
		a.decorateCmd(),
		a.probeCmd(),
	)
	return root
}

func (a *app) init(stderr io.Writer) error {
	var level slog.Level
	switch a.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	a.logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	if a.configPath == "" {
		a.cfg = config.DefaultConfig()
	} else {
		cfg, err := config.LoadFile(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if db := os.Getenv("COMMENTLINK_SETTINGS_DB"); db != "" {
		a.cfg.Settings.DB = db
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("commentlink: write output: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readInput(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("commentlink: read %s: %w", path, err)
	}
	return string(data), nil
}
