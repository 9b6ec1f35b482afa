package commands

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/controller"
	"github.com/helicase/mdq/db"
	"github.com/helicase/mdq/gateway"
	"github.com/helicase/mdq/gateway/slurmcli"
	"github.com/helicase/mdq/logger"
	"github.com/helicase/mdq/policy"
	"github.com/helicase/mdq/reconcile"
	"github.com/helicase/mdq/store"
)

// app holds the wired-up components a command needs. Every command that
// touches the database goes through openApp so wiring lives in one place.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   *store.Store
	gw      gateway.Gateway
	rec     *reconcile.Reconciler
	ctl     *controller.Controller
	catalog *policy.Catalog
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	catalog, err := policy.Load()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load policy catalog: %w", err)
	}

	s := store.NewStore(database)
	gw := gateway.NewThrottled(slurmcli.New(cfg.Gateway), cfg.Gateway.MaxCallsPerMinute)
	rec := reconcile.New(s, gw)

	return &app{
		cfg:     cfg,
		db:      database,
		store:   s,
		gw:      gw,
		rec:     rec,
		ctl:     controller.New(s, gw, rec, catalog, cfg.Advisory),
		catalog: catalog,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logger.Logger.Warnw("Failed to close database", "error", err)
	}
}
