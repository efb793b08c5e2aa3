package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PetersonGuo/HTN25/internal/config"
	"github.com/PetersonGuo/HTN25/internal/logging"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	logLevel  string
	logFormat string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "llmpipe",
	Short: "Schema-constrained LLM prompt pipeline",
	Long: "llmpipe renders a prompt template, sends it to a generation backend and " +
		"retries until the output conforms to a JSON Schema.",
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the layered config files and the logger before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if err := loadConfigForCwd(); err != nil {
		return err
	}

	settings := config.LoggingSettings()
	if logLevel != "" {
		settings.Level = logLevel
	}
	if logFormat != "" {
		settings.Format = logFormat
	}

	built, err := logging.New(logging.Options{Level: settings.Level, Format: settings.Format, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	logger = built
	return nil
}
