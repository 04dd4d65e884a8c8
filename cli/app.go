// ABOUTME: Wiring shared by every command: config, logger, store, source, watermarks and runner
// ABOUTME: Builds one sync Runner per process so every trigger shares the single-flight guard
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/charm"
	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
	crmsync "github.com/harperreed/crmsync/sync"
)

// App holds the long-lived pieces a command needs.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Store  *db.Store
	Runner *crmsync.Runner
	Out    io.Writer
}

// NewApp opens the store and assembles the engine described by cfg.
func NewApp(cfg *config.Config) (*App, error) {
	logger := cfg.Logger()

	store, err := db.Open(cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	source, err := newSource(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	marks, err := newWatermarks(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	since, err := cfg.Since()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.WithFields(log.Fields{
		"driver":     cfg.DatabaseDriver,
		"watermarks": cfg.WatermarkBackend,
	}).Debug("store opened")

	return assemble(cfg, logger, store, source, marks, since), nil
}

func assemble(cfg *config.Config, logger *log.Logger, store *db.Store, source crmsync.Source, marks crmsync.WatermarkStore, since time.Time) *App {
	engine := crmsync.NewEngine(crmsync.Options{
		Source:       source,
		Store:        store,
		Watermarks:   marks,
		Journal:      store,
		DefaultSince: since,
		Logger:       logger,
	})
	return &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Runner: crmsync.NewRunner(engine),
		Out:    os.Stdout,
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

func newSource(cfg *config.Config) (crmsync.Source, error) {
	if cfg.LegacyBaseURL == "" {
		return unconfiguredSource{}, nil
	}
	client, err := crmsync.NewLegacyClient(crmsync.LegacyClientOptions{
		BaseURL:       cfg.LegacyBaseURL,
		EndpointParam: cfg.LegacyEndpointParam,
		UserAgent:     cfg.LegacyUserAgent,
		Timeout:       cfg.LegacyTimeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create legacy client: %w", err)
	}
	return client, nil
}

func newWatermarks(cfg *config.Config, store *db.Store) (crmsync.WatermarkStore, error) {
	if cfg.WatermarkBackend != config.BackendCharm {
		return store, nil
	}
	client, err := charm.Open(cfg.Charm())
	if err != nil {
		return nil, err
	}
	return charm.NewWatermarkStore(client), nil
}

// unconfiguredSource lets push, export and the read-only commands work
// before a legacy base url is set. Every fetch fails.
type unconfiguredSource struct{}

func (unconfiguredSource) Fetch(_ context.Context, category string, _ *time.Time) (*crmsync.Batch, error) {
	return nil, fmt.Errorf("%w: legacy_base_url is not configured", crmsync.ErrSourceUnavailable)
}
