package main

import (
	"fmt"
	"os"

	"github.com/lgulliver/quarry/internal/common"
	"github.com/lgulliver/quarry/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	var (
		up         = pflag.Bool("up", false, "Run pending migrations")
		down       = pflag.Bool("down", false, "Roll back the last migration")
		configPath = pflag.StringP("config", "c", os.Getenv("QUARRY_CONFIG"), "path to a YAML config file")
	)
	pflag.Parse()

	if *up == *down {
		fmt.Printf("Usage: %s [--config file] (--up | --down)\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Logging.SetupLogging()

	db, err := common.NewDatabase(&cfg.Database, cfg.Logging.IsDebug())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if *up {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Migrations completed successfully")
	}

	if *down {
		if err := db.Rollback(); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		log.Info().Msg("Rollback completed successfully")
	}
}
