package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"savings/internal/backend"
	"savings/internal/storage"
	"savings/internal/store/mongostore"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite migrations or create MongoDB indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			switch backend.BackendType(cfg.DataBackend) {
			case backend.SQLiteBackend:
				if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
					return err
				}
				logger.Info("SQLite migrations applied", "db_path", cfg.SQLiteDBPath)
			case backend.MongoBackend:
				// Connect ensures the ledger indexes.
				st, err := mongostore.Connect(cmd.Context(), cfg.MongoURI, cfg.MongoDatabase)
				if err != nil {
					return err
				}
				defer st.Close(cmd.Context())
				logger.Info("MongoDB indexes ensured", "database", cfg.MongoDatabase)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to migrate for %s backend\n", cfg.DataBackend)
			}
			return nil
		},
	}
}
