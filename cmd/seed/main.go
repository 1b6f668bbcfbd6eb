package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"maintenance-classifier/internal/cfg"
	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/dataset"
	"maintenance-classifier/internal/repository"
	"maintenance-classifier/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		csvPath  = flag.String("csv", "datasets/ai4i2020.csv", "Path to the AI4I 2020 dataset")
		products = flag.Int("products", 5, "Number of productions to create")
		limit    = flag.Int("limit", 0, "Maximum log records to write (0 for all)")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	loader := dataset.NewLoader()
	if err := loader.LoadFromCSV(*csvPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	catalog, closeCatalog := openCatalog(config)
	defer closeCatalog()

	_, err = dataset.Seed(context.Background(), catalog, loader, dataset.SeedOptions{
		Products: *products,
		Limit:    *limit,
	})
	if errors.Is(err, dataset.ErrAlreadySeeded) {
		log.Warn().Msg("Catalog already holds log records, skipping seed")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
}

func openCatalog(config cfg.Settings) (dataset.Catalog, func()) {
	if err := os.MkdirAll(config.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Data directory unavailable")
	}

	switch config.StorageDriver {
	case common.DriverPostgres, common.DriverSQLite:
		repo, err := repository.Open(config.StorageDriver, config.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		return repo, func() { repo.Close() }
	default:
		store, err := storage.New(config.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open storage")
		}
		return store, func() { store.Close() }
	}
}
