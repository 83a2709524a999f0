package main

import (
	"fmt"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage/postgres"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigPath(*configPath)
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.StoragePostgres {
				return fmt.Errorf("migrate: storage driver is %q, nothing to migrate", cfg.Storage.Driver)
			}

			log := setupLogger(cfg.Env)

			storage, err := postgres.New(cmd.Context(), cfg.Postgres)
			if err != nil {
				log.Error("failed to connect postgres", sl.Err(err))
				return err
			}
			defer storage.Close()

			if err := storage.Migrate(cmd.Context()); err != nil {
				log.Error("failed to apply migrations", sl.Err(err))
				return err
			}

			log.Info("migrations applied")

			return nil
		},
	}
}
