package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/config"
)

type globalOptions struct {
	configPath string
	out        io.Writer
	logOut     io.Writer
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&globalOptions{out: os.Stdout, logOut: os.Stdout})
}

func newRootCmdWith(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "freezer",
		Short:         "Apply storage-tier tags from freeze directives to a mirrored bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("FREEZER_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		newRunCmd(opts),
		newWatchCmd(opts),
		newDiscoverCmd(opts),
		newInspectCmd(opts),
		newMarkCmd(opts),
		newLedgerCmd(opts),
	)
	return root
}

func (o *globalOptions) load() (config.File, *slog.Logger, error) {
	f, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.File{}, nil, invalidConfig(err)
	}
	return f, newLogger(o.logOut, config.LogLevel(f)), nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})).With("service", "freezer")
}
