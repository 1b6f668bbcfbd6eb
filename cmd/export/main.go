package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/dataset"
	"maintenance-classifier/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath   = flag.String("data", common.DefaultDataPath, "Path to data directory")
		outputPath = flag.String("output", "", "Output CSV file (stdout when empty)")
		days       = flag.Int("days", 30, "Number of days to export (0 for all)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("Failed to open storage")
	}
	defer store.Close()

	end := time.Now().UTC()
	start := time.Unix(0, 0).UTC()
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}

	records, err := store.ScoringsInRange(context.Background(), start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read scoring journal")
	}
	if len(records) == 0 {
		log.Warn().Msg("No scorings found in range")
	}

	var out io.Writer = os.Stdout
	if *outputPath != "" {
		file, err := os.Create(*outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer file.Close()
		out = file
	}

	models := []string{common.ModelLogisticRegression, common.ModelRandomForest, common.ModelXGBoost}
	if err := dataset.WriteScorings(out, models, records); err != nil {
		log.Fatal().Err(err).Msg("Failed to write export")
	}

	log.Info().
		Int("records", len(records)).
		Time("start", start).
		Time("end", end).
		Msg("Scoring journal exported")
}
