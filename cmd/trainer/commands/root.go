// Package commands implements the trainer command line.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trainer/internal/config"
)

// globalOptions are the persistent flags shared by every sub-command.
type globalOptions struct {
	configPath string
	jsonLogs   bool
}

// NewRootCmd creates the root command with all sub-commands attached.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "trainer",
		Short: "Train the chat sender classifier",
		Long: `trainer reads the chat log, learns to tell agent-written messages from
human ones, and writes the best model checkpoint and its vocabulary.

Examples:
  trainer train --config configs/config.yml
  trainer train --epochs 1
  trainer verify
  trainer migrate`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yml (defaults apply when empty)")
	cmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "emit production JSON logs instead of development logs")

	cmd.AddCommand(NewTrainCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewVerifyCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(jsonLogs bool) (*zap.Logger, error) {
	if jsonLogs {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// loadConfig reads .env (if any) and the YAML file, then validates the result.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	_ = godotenv.Load()
	return config.LoadConfig(opts.configPath)
}

// setup loads configuration and builds the logger every sub-command needs.
func setup(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(opts.jsonLogs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
