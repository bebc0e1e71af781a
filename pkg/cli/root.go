// Package cli wires the tasklink commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the tasklink command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tasklink",
		Short:         "Bidirectional task sync with Google Tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tasklink/config.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(tickCmd(&configPath))
	rootCmd.AddCommand(syncCmd(&configPath))
	rootCmd.AddCommand(linkCmd(&configPath))
	rootCmd.AddCommand(notifyHookCmd(&configPath))
	rootCmd.AddCommand(userCmd(&configPath))
	rootCmd.AddCommand(projectCmd(&configPath))

	return rootCmd
}

func mustMakeLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO", "":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		panic("unknown log level: " + levelStr)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
