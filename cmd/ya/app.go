package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/config"
	"github.com/yatools/yasync/internal/events"
	"github.com/yatools/yasync/internal/host/memhost"
	"github.com/yatools/yasync/internal/livedb"
	"github.com/yatools/yasync/internal/repo"
	"github.com/yatools/yasync/internal/store"
	"github.com/yatools/yasync/internal/vcs"
)

// app is everything one command needs: the repository, the cache store, the
// live database and a session tying them together.
type app struct {
	root   string
	cfg    *config.Config
	logger *zap.Logger

	vcs     vcs.VCS
	repo    *repo.Repository
	store   *store.Store
	live    *livedb.DB
	db      *memhost.DB
	session events.Events
}

func openApp(ctx context.Context) (*app, error) {
	v, err := vcs.GetWithPreference(root, vcs.Type(cfg.VCS))
	if err != nil {
		if errors.Is(err, vcs.ErrNotInVCS) {
			return nil, fmt.Errorf("%s is not a git or jj repository, run 'ya init' first", root)
		}
		return nil, err
	}

	if _, err := vcs.CheckVersion(v); err != nil {
		logger.Warn("Version control backend may not work", zap.Error(err))
	}

	a := &app{root: root, cfg: cfg, logger: logger, vcs: v}
	a.repo, err = repo.Open(v, repo.Options{
		CacheDir: cfg.CacheDir,
		StateDir: cfg.StateDir,
		Remote:   cfg.Remote,
		Ref:      cfg.Ref,
		Author:   cfg.Commit.Author,
		Push:     cfg.Commit.Push,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.store, err = store.Open(root, cfg.CacheDir, store.Options{
		ParseCacheSize: cfg.Store.ParseCacheSize,
		Workers:        cfg.Store.Workers,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	a.live, err = livedb.OpenContext(ctx, a.liveDBPath())
	if err != nil {
		return nil, err
	}
	a.db, err = a.live.LoadContext(ctx)
	if err != nil {
		a.live.Close()
		return nil, err
	}

	a.session = events.New(events.Config{
		DB:       a.db,
		Repo:     a.repo,
		Store:    a.store,
		Listener: a.db.Listener(),
		Persist:  a.persist,
		Logger:   logger,
	})
	a.db.OnChange(a.session.Notify)
	return a, nil
}

func (a *app) liveDBPath() string {
	return config.Abs(a.root, filepath.FromSlash(a.cfg.LiveDB))
}

// persist writes the live database back to disk.
func (a *app) persist(ctx context.Context) error {
	if err := a.live.SaveContext(ctx, a.db); err != nil {
		return fmt.Errorf("failed to persist live database: %w", err)
	}
	return nil
}

func (a *app) Close() error {
	return a.live.Close()
}
