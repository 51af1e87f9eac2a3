package main

import (
	"SynthLedger/internal/config"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/projection"
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func usage() {
	fmt.Println("Usage: migrate <up|down|pending|rebuild-projections>")
	fmt.Println("  up                  - apply all pending migrations")
	fmt.Println("  down                - roll back the last migration")
	fmt.Println("  pending             - list migrations not yet applied")
	fmt.Println("  rebuild-projections - rebuild projection tables from the event log (service must be stopped)")
	fmt.Println()
	fmt.Println("Environment (also read from .env):")
	fmt.Println("  SYNTH_POSTGRES_DSN   - Postgres connection string")
	fmt.Println("  SYNTH_MIGRATIONS_DIR - path to migrations directory (default: migrations)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := observability.NewLogger("migrate")
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate up")
		}
		log.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		log.Info().Msg("last migration rolled back")

	case "pending":
		pending, err := migrator.Pending(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("list pending migrations")
		}
		for _, name := range pending {
			fmt.Println(name)
		}
		log.Info().Int("pending", len(pending)).Msg("pending migrations listed")

	case "rebuild-projections":
		if err := projection.RebuildProjections(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("rebuild projections")
		}
		log.Info().Msg("projections rebuilt")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}
