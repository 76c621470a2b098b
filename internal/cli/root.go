// Package cli implements the aide command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/aide/config"
	"github.com/hupe1980/aide/logging"
)

var (
	providerFlag string
	modelFlag    string
	userFlag     string
	dbFlag       string
	verboseFlag  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "aide",
	Short: "A personal assistant that reasons, acts and remembers",
	Long: "aide is a terminal personal assistant. It talks to a language model,\n" +
		"executes capabilities like file, web and email access through a gated\n" +
		"registry, and keeps long-term memories in a local SQLite database.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Model provider: anthropic, openai, deepseek or ollama")
	RootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model identifier passed to the provider")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "default", "User id that scopes transcripts and memories")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Memory database path")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

// loadConfig builds the effective configuration from environment plus flags.
func loadConfig() config.Config {
	cfg := config.FromEnv()
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if dbFlag != "" {
		cfg.MemoryDBPath = dbFlag
	}
	return cfg
}

func newLogger() logging.Logger {
	if !verboseFlag {
		return logging.NoOpLogger{}
	}
	return logging.NewSlogLogger(logging.LogLevelDebug, "text", false)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
