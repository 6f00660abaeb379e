package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"trainer/internal/repository"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the chat log schema",
		Long: `Apply the SQL migrations under database.migrations_path to the configured
PostgreSQL database. SQLite corpora are expected to be provisioned externally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required")
			}

			db, err := repository.Open(cfg.Database.Driver, cfg.Database.URL, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return repository.MigrateDB(db, cfg.Database.MigrationsPath, logger)
		},
	}
}
