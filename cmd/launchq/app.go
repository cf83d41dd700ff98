package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/igusev/launchq/internal/config"
	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/plugins/apps"
	"github.com/igusev/launchq/internal/plugins/bookmarks"
	"github.com/igusev/launchq/internal/plugins/files"
	"github.com/igusev/launchq/internal/plugins/notes"
	"github.com/igusev/launchq/internal/plugins/ssh"
	"github.com/igusev/launchq/internal/plugins/websearch"
	"github.com/igusev/launchq/internal/query"
	"github.com/igusev/launchq/internal/registry"
	"github.com/igusev/launchq/internal/storage"
	"github.com/igusev/launchq/internal/usage"
)

// usageLogName is the gob usage log inside the data dir
const usageLogName = "usage.gob"

// indexTimeout bounds how long startup waits for the initial indexes
const indexTimeout = 10 * time.Second

// indexer is a handler with a background index
type indexer interface {
	handler.Extension
	Rebuild()
	WaitForIndex(ctx context.Context) error
}

// app owns everything built from the configuration
type app struct {
	cfg      *config.Config
	scoring  *usage.Scoring
	registry *registry.Registry
	engine   *query.Engine
	indexers []indexer
	closers  []io.Closer // Closed in reverse order
}

// appOptions tweak how the app is wired, mostly for tests
type appOptions struct {
	launcher     *desktop.Launcher
	queryOptions []query.Option
}

// newApp opens storage, loads usage history, registers the extensions and creates the engine
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, registry: registry.New()}

	stores, err := a.openUsage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	pool := executor.NewPool(cfg.Engine.Workers)
	if err := a.registerExtensions(ctx, stores, opts.launcher, pool); err != nil {
		a.close()
		return nil, err
	}
	a.applyExtensionSettings()

	qopts := []query.Option{
		query.WithScoring(a.scoring),
		query.WithPool(pool),
		query.WithFallbacks(cfg.Engine.Fallbacks),
	}
	a.engine = query.New(a.registry, append(qopts, opts.queryOptions...)...)
	return a, nil
}

// openUsage opens storage and loads the usage history.
// It is all the usage subcommands need.
func (a *app) openUsage(ctx context.Context) (handler.StoreProvider, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log, stores, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	a.scoring, err = usage.New(a.cfg.UsageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("invalid usage settings: %w", err)
	}
	if err := a.scoring.Load(ctx); err != nil {
		logger.Warn("Starting without usage history: %v", err)
	}
	return stores, nil
}

// openStorage returns the activation log and the scoped settings stores
func (a *app) openStorage() (usage.Log, handler.StoreProvider, error) {
	switch a.cfg.Usage.Store {
	case config.StoreGob:
		fileLog := usage.NewFileLog(filepath.Join(a.cfg.DataDir, usageLogName))
		a.closers = append(a.closers, fileLog)
		return fileLog, handler.NewMemoryStores(), nil
	default:
		store, err := storage.Open(a.cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store)
		return store.ActivationLog(), store, nil
	}
}

func (a *app) registerExtensions(ctx context.Context, stores handler.StoreProvider, launcher *desktop.Launcher, pool *executor.Pool) error {
	cfg := a.cfg
	indexOpts := []executor.Option{executor.WithPool(pool)}

	appsHandler, err := apps.New(cfg.Apps.Dirs, cfg.IndexConfig(), launcher, indexOpts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, appsHandler)
	a.indexers = append(a.indexers, appsHandler)

	bookmarksHandler, err := bookmarks.New(cfg.Bookmarks.File, cfg.IndexConfig(), launcher, indexOpts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, bookmarksHandler)
	a.indexers = append(a.indexers, bookmarksHandler)

	notesHandler, err := notes.New(cfg.Notes.Dir, cfg.MatchConfig(), launcher, indexOpts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, notesHandler)
	a.indexers = append(a.indexers, notesHandler)

	engines := make([]websearch.Engine, len(cfg.WebSearch.Engines))
	for i, e := range cfg.WebSearch.Engines {
		engines[i] = websearch.Engine{Name: e.Name, URL: e.URL}
	}
	webHandler := websearch.New(engines, stores, launcher)
	if err := webHandler.LoadSettings(ctx); err != nil {
		logger.Warn("Using default search engines: %v", err)
	}

	exts := []handler.Extension{
		appsHandler,
		bookmarksHandler,
		notesHandler,
		ssh.New(cfg.SSH.Config, cfg.MatchConfig(), ssh.WithLauncher(launcher)),
		files.New(cfg.Files.Roots, cfg.Files.BatchSize, cfg.Files.MaxDepth, launcher),
		webHandler,
	}
	for _, ext := range exts {
		if err := a.registry.Register(ext); err != nil {
			return fmt.Errorf("failed to register %s: %w", ext.ID(), err)
		}
	}
	return nil
}

// applyExtensionSettings disables and remaps extensions per the configuration.
// Bad entries are reported and skipped.
func (a *app) applyExtensionSettings() {
	for _, e := range a.registry.Entries() {
		id := e.Extension.ID()
		if a.cfg.IsDisabled(id) {
			if err := a.registry.SetEnabled(id, false); err != nil {
				logger.Warn("Failed to disable %s: %v", id, err)
			}
		}
	}
	for id, trigger := range a.cfg.Extensions.Triggers {
		if err := a.registry.SetTrigger(id, trigger); err != nil {
			logger.Warn("Ignoring trigger %q for %s: %v", trigger, id, err)
		}
	}
}

// buildIndexes rebuilds every enabled index and waits for them
func (a *app) buildIndexes(ctx context.Context) error {
	var active []indexer
	for _, ix := range a.indexers {
		if e, ok := a.registry.Get(ix.ID()); ok && e.Enabled {
			ix.Rebuild()
			active = append(active, ix)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	var errs []error
	for _, ix := range active {
		if err := ix.WaitForIndex(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ix.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// watchBookmarks rebuilds the bookmarks index whenever the file changes
func (a *app) watchBookmarks() {
	if !a.cfg.Bookmarks.Watch {
		return
	}
	e, ok := a.registry.Get(bookmarks.ID)
	if !ok || !e.Enabled {
		return
	}
	if h, ok := e.Extension.(*bookmarks.Handler); ok {
		if err := h.Watch(); err != nil {
			logger.Warn("Not watching bookmarks: %v", err)
		}
	}
}

// close shuts down the engine, then the handlers and storage
func (a *app) close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			logger.Debug("Failed to close engine: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Debug("Failed to close: %v", err)
		}
	}
	a.closers = nil
}
