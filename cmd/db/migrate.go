package db

import (
	"errors"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/migrations"
)

func newMigrate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies the embedded SQL migrations to POSTGRES_DSN",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Migrate to the latest version",
			Run: func(cmd *cobra.Command, args []string) {
				runMigration(func(m *migrate.Migrate) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						log.Fatal().Str("steps", args[0]).Msg("Steps must be a positive integer")
					}
					steps = n
				}
				runMigration(func(m *migrate.Migrate) error { return m.Steps(-steps) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Run: func(cmd *cobra.Command, args []string) {
				runMigration(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
					return nil
				})
			},
		},
	)

	return cmd
}

func runMigration(fn func(m *migrate.Migrate) error) {
	cfg := config.DefaultServiceConfigFromEnv()
	if cfg.Storage.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is not set")
	}

	m, err := migrations.New(cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Failed to close migrator")
		}
	}()

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No migrations to apply")
			return
		}
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migration has been applied yet")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migration finished")
}
