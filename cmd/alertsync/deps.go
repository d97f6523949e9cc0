package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/api"
	"github.com/nhle/commodity-alerts/internal/credential"
	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/prefs"
	"github.com/nhle/commodity-alerts/internal/reconcile"
	"github.com/nhle/commodity-alerts/internal/store"
	"github.com/nhle/commodity-alerts/internal/sync"
)

// deps holds the components a command works with.
type deps struct {
	store  *store.SQLiteStore
	client *api.Client
}

// openStore opens the cache database named in the config.
func openStore(c *model.AppConfig) (*store.SQLiteStore, error) {
	policy, err := reconcile.ParseReadPolicy(c.Sync.ReadPolicy)
	if err != nil {
		return nil, err
	}

	path := c.Store.Path
	if path == "" {
		path = model.DefaultStorePath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path, store.WithReadPolicy(policy))
}

// newClient builds the backend client. Without a token requests go out
// unauthenticated.
func newClient(c *model.AppConfig, log *zap.Logger) *api.Client {
	token, err := credential.Token()
	if errors.Is(err, credential.ErrNoToken) {
		log.Warn("no API token configured, requests are unauthenticated")
	} else if err != nil {
		log.Warn("reading API token failed", zap.Error(err))
	}

	return api.NewClient(c.API.BaseURL, token,
		api.WithTimeout(c.API.Timeout()),
		api.WithMaxRetries(c.API.MaxRetries),
		api.WithLogger(log.Named("api")),
	)
}

func openDeps() (*deps, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &deps{store: s, client: newClient(cfg, logger)}, nil
}

func (d *deps) Close() {
	if err := d.store.Close(); err != nil {
		logger.Warn("closing cache failed", zap.Error(err))
	}
}

func (d *deps) controller(opts ...sync.Option) *sync.Controller {
	opts = append([]sync.Option{sync.WithLogger(logger.Named("sync"))}, opts...)
	return sync.New(d.store, d.client, cfg.Sync, opts...)
}

func (d *deps) prefs() *prefs.Service {
	return prefs.NewService(d.client, d.store, logger.Named("prefs"))
}
