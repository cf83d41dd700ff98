// Package bookmarks offers URLs from a YAML bookmarks file as global results
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "bookmarks"

// Bookmark is one entry of the bookmarks file
type Bookmark struct {
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Load reads a bookmarks file. A missing file yields no bookmarks.
func Load(path string) ([]Bookmark, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configured bookmarks file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bookmarks: %w", err)
	}

	var bookmarks []Bookmark
	if err := yaml.Unmarshal(data, &bookmarks); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	valid := bookmarks[:0]
	for _, b := range bookmarks {
		if b.URL == "" {
			logger.Warn("bookmarks: skipping %q without url", b.Name)
			continue
		}
		if b.Name == "" {
			b.Name = b.URL
		}
		valid = append(valid, b)
	}
	return valid, nil
}

// Handler indexes bookmarks by name and tags
type Handler struct {
	handler.Base
	*handler.Indexed

	path     string
	launcher *desktop.Launcher

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates the handler. Call Rebuild to read the file.
func New(path string, cfg index.Config, launcher *desktop.Launcher, opts ...executor.Option) (*Handler, error) {
	if launcher == nil {
		launcher = desktop.Default
	}
	h := &Handler{
		Base:     handler.NewBase(ID, "Bookmarks", "Open bookmarked URLs"),
		path:     path,
		launcher: launcher,
	}

	x, err := handler.NewIndexed(ID, cfg, h.items, opts...)
	if err != nil {
		return nil, err
	}
	h.Indexed = x
	return h, nil
}

// DefaultTrigger is "b "
func (h *Handler) DefaultTrigger() string { return "b " }

// HandleGlobalQuery returns the matching bookmarks with their match scores
func (h *Handler) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	return h.Search(q), nil
}

// HandleTriggerQuery lists the matching bookmarks, best first
func (h *Handler) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

// Watch rebuilds the index whenever the bookmarks file changes.
// The parent directory is watched so editors that replace the file are seen.
func (h *Handler) Watch() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(h.path), err)
	}

	h.watcher = watcher
	h.done = make(chan struct{})
	go h.watchLoop(watcher, h.done)
	return nil
}

func (h *Handler) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	name := filepath.Clean(h.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("bookmarks: %s changed (%s), rebuilding", event.Name, event.Op)
			// Bursts collapse into one rerun on the rebuild executor
			h.Rebuild()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("bookmarks: watcher error: %v", err)
		}
	}
}

// Close stops watching and any running rebuild
func (h *Handler) Close() error {
	h.mu.Lock()
	watcher, done := h.watcher, h.done
	h.watcher = nil
	h.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
		<-done
	}
	return h.Indexed.Close()
}

func (h *Handler) items(context.Context) ([]model.IndexItem, error) {
	bookmarks, err := Load(h.path)
	if err != nil {
		return nil, err
	}

	out := make([]model.IndexItem, 0, len(bookmarks)*2)
	for _, b := range bookmarks {
		item := h.item(b)
		lookups := append([]string{b.Name}, b.Tags...)
		out = append(out, model.NewIndexItems(item, lookups...)...)
	}
	return out, nil
}

func (h *Handler) item(b Bookmark) *model.Item {
	subtext := b.URL
	if b.Description != "" {
		subtext = b.Description
	}
	if len(b.Tags) > 0 {
		subtext += " [" + strings.Join(b.Tags, ", ") + "]"
	}

	return &model.Item{
		ID:              b.URL,
		Text:            b.Name,
		Subtext:         subtext,
		IconURLs:        []string{model.XDGIcon("bookmark-new"), model.GeneratedIcon("", "", "★", 0)},
		InputActionText: b.URL,
		Actions: []model.Action{
			{
				ID:            "open",
				Text:          "Open in browser",
				HideOnTrigger: true,
				Run:           func() error { return h.launcher.Open(b.URL) },
			},
			{
				ID:   "copy",
				Text: "Copy URL",
				Run:  func() error { return h.launcher.Copy(b.URL) },
			},
		},
	}
}

var _ handler.GlobalHandler = (*Handler)(nil)
