// Command apex-server runs the APEX pattern-knowledge service as a
// line-delimited JSON-RPC process over stdio, for use as an MCP-style tool
// backend by an AI coding assistant. Entry point and global flags follow
// the teacher CLI's rootCmd convention (cmd/nerd/main.go): persistent flags
// bound in init(), a PersistentPreRunE that builds the process logger
// before any subcommand runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benredmond/apex-sub002/internal/logging"
)

var (
	verbose    bool
	configPath string
	dbPath     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "apex-server",
	Short: "APEX pattern-knowledge service for AI coding assistants",
	Long: `apex-server stores coding patterns, ranks and assembles them into
size-bounded context packs, tracks their reliability with a Beta-Bernoulli
trust model, and accepts structured reflections over a task's lifecycle —
all served as apex_* tool calls over line-delimited JSON-RPC on stdio.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logging.Configure(verbose, logging.LevelInfo)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to apex.yaml config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite pattern store (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
