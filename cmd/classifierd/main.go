package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"maintenance-classifier/internal/api"
	"maintenance-classifier/internal/cfg"
	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/dashboard"
	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/ingest"
	"maintenance-classifier/internal/metrics"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/prediction"
	"maintenance-classifier/internal/repository"
	"maintenance-classifier/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("data directory unavailable")
	}

	// The scoring journal always lives in bbolt, whatever backs the catalog.
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("storage initialization failed")
	}
	defer store.Close()

	catalog := initializeCatalog(c, store)
	if catalog != domain.Repository(store) {
		defer catalog.Close()
	}

	registry := initializeModels(ctx, c, mw)
	scorer := ml.NewScorer(registry, mw)

	latest := &prediction.Latest{}
	hub := dashboard.New(latest, mw)

	svc := prediction.NewService(prediction.Dependencies{
		Machines:  catalog,
		Products:  catalog,
		Store:     catalog,
		Scorer:    scorer,
		Journal:   store,
		Publisher: hub,
		Metrics:   mw,
		Latest:    latest,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	subscriber := startIngest(ctx, c, svc, mw)

	server := api.NewServer(svc, catalog, registry, hub)
	startServer(ctx, &wg, cancel, "api", c.HTTPPort, server.Router())
	startServer(ctx, &wg, cancel, "metrics", c.MetricsPort, metricsHandler())

	waitForShutdown(ctx, cancel, &wg)

	if subscriber != nil {
		subscriber.Stop()
	}
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeCatalog opens the relational backend when one is configured and
// falls back to the bbolt store otherwise.
func initializeCatalog(c cfg.Settings, store *storage.Store) domain.Repository {
	switch c.StorageDriver {
	case common.DriverPostgres, common.DriverSQLite:
		repo, err := repository.Open(c.StorageDriver, c.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Str("driver", c.StorageDriver).Msg("database initialization failed")
		}
		return repo
	default:
		log.Info().Str("path", c.DataPath).Msg("Using embedded catalog storage")
		return store
	}
}

func initializeModels(ctx context.Context, c cfg.Settings, mw *metrics.MetricsWrapper) *ml.Registry {
	accuracy, err := ml.LoadAccuracy(c.ModelMetricsFile)
	if err != nil {
		log.Warn().Err(err).Str("file", c.ModelMetricsFile).Msg("Model metrics table unusable, using defaults")
	}

	registry := ml.LoadRegistry(ctx, c.Models, ml.LoadOptions{
		PythonPath: c.PythonPath,
		Timeout:    c.InferenceTimeout,
		Accuracy:   accuracy,
		Metrics:    mw,
	})

	names := make([]string, 0, len(c.Models))
	for _, m := range registry.Available() {
		names = append(names, m.Name)
	}
	log.Info().
		Int("configured", len(c.Models)).
		Str("available", strings.Join(names, ",")).
		Msg("Model registry loaded")

	return registry
}

func startIngest(ctx context.Context, c cfg.Settings, svc *prediction.Service, mw *metrics.MetricsWrapper) *ingest.Subscriber {
	if !c.MQTT.Enabled {
		return nil
	}

	sub := ingest.NewSubscriber(ingest.Config{
		Broker:        c.MQTT.Broker,
		Topic:         c.MQTT.Topic,
		ClientID:      c.MQTT.ClientID,
		QoS:           byte(c.MQTT.QoS),
		Username:      c.MQTT.Username,
		Password:      c.MQTT.Password,
		HandleTimeout: c.InferenceTimeout * 2,
	}, svc, mw)

	if err := sub.Start(ctx); err != nil {
		log.Error().Err(err).Str("broker", c.MQTT.Broker).Msg("MQTT ingest disabled")
		return nil
	}
	return sub
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startServer serves handler on port until ctx is cancelled. A listen
// failure cancels ctx so the process exits.
func startServer(ctx context.Context, wg *sync.WaitGroup, cancel context.CancelFunc, name string, port int, handler http.Handler) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("server", name).Msg("failed to shutdown server")
		}
	}()

	go func() {
		defer wg.Done()
		log.Info().Str("server", name).Int("port", port).Msg("Listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("server", name).Msg("server failed")
			cancel()
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
