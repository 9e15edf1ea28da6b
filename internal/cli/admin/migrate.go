package admin

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbvec/internal/config"
	"github.com/cloo-solutions/kbvec/internal/database"
	"github.com/cloo-solutions/kbvec/internal/repository/sqlite"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  "Apply pending schema migrations to the configured store (KB_STORE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			source, _ := cmd.Flags().GetString("source")
			return runMigrate(cfg, source)
		},
	}

	cmd.Flags().String("source", database.DefaultMigrationsSource, "Migration source URL for Postgres")

	return cmd
}

func runMigrate(cfg *config.Config, source string) error {
	if cfg.UsesSQLite() {
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		log.Printf("migrations: sqlite store at %s is up to date", store.Path())
		return store.Close()
	}

	return database.Migrate(cfg.DatabaseURL, source)
}
