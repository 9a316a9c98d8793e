package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamkuldeepprovana/kmschatbot/db"
	"github.com/iamkuldeepprovana/kmschatbot/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations and exit",
	Long: `Applies the embedded schema migrations to the configured PostgreSQL
database. Only meaningful with store_driver set to "postgres"; the serve
command also runs migrations at startup, so this exists for deploy
pipelines that migrate before rolling out.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("%w: migrate requires store_driver %q, got %q",
			config.ErrInvalidStoreDriver, config.DriverPostgres, cfg.StoreDriver)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
