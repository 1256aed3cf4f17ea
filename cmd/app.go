package cmd

import (
	"fmt"
	"net/http"

	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/config"
	"github.com/njaaron/articlesearch/internal/prefs"
	"github.com/njaaron/articlesearch/internal/search"
	"github.com/njaaron/articlesearch/internal/syncer"
)

// deps is everything a long-running command needs.
type deps struct {
	cfg        *config.Config
	db         *cache.Cache
	gate       *prefs.Gate
	controller *syncer.Controller
}

func (d *deps) Close() error {
	return d.db.Close()
}

func buildDeps(cfg *config.Config, dbPath, settingsPath string) (*deps, error) {
	gate, err := prefs.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	client := search.NewClient(
		&http.Client{Timeout: cfg.FetchTimeoutDuration()},
		search.Options{Endpoint: cfg.SearchEndpoint, APIKey: cfg.Key()},
	)
	controller := syncer.New(client, db, gate, syncer.Options{Timeout: cfg.FetchTimeoutDuration()})

	return &deps{cfg: cfg, db: db, gate: gate, controller: controller}, nil
}
