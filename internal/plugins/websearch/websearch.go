// Package websearch offers web search URLs as fallbacks and behind the "? " trigger
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "websearch"

const (
	urlKeyPrefix  = "url."
	lastEngineKey = "last_engine"
)

// ErrInvalidTemplate is returned for URL templates without a %s placeholder
var ErrInvalidTemplate = errors.New("url template must contain %s")

// ErrUnknownEngine is returned when overriding an engine that is not configured
var ErrUnknownEngine = errors.New("unknown search engine")

// Engine is a named URL template; %s is replaced by the escaped query
type Engine struct {
	Name string
	URL  string
}

// SearchURL returns the template with the escaped query filled in
func (e Engine) SearchURL(query string) string {
	return strings.Replace(e.URL, "%s", url.QueryEscape(query), 1)
}

// Handler produces one item per engine for a query.
// Template overrides live in the settings store under "url.<name>",
// the last used engine in the state store.
type Handler struct {
	handler.Base

	launcher *desktop.Launcher
	settings handler.Store
	state    handler.Store

	mu      sync.RWMutex
	engines []Engine
	last    string
}

// New creates the handler. Nil stores keep everything in memory.
func New(engines []Engine, stores handler.StoreProvider, launcher *desktop.Launcher) *Handler {
	if stores == nil {
		stores = handler.NewMemoryStores()
	}
	if launcher == nil {
		launcher = desktop.Default
	}
	return &Handler{
		Base:     handler.NewBase(ID, "Web search", "Search the web for the query"),
		launcher: launcher,
		settings: stores.Settings(ID),
		state:    stores.State(ID),
		engines:  append([]Engine(nil), engines...),
	}
}

// DefaultTrigger is "? "
func (h *Handler) DefaultTrigger() string { return "? " }

// Synopsis is shown until a query is typed
func (h *Handler) Synopsis(string) string { return "<search terms>" }

// LoadSettings applies stored URL overrides and the last used engine
func (h *Handler) LoadSettings(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.engines {
		v, err := h.settings.Get(ctx, urlKeyPrefix+e.Name)
		if errors.Is(err, handler.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s override: %w", e.Name, err)
		}
		if !strings.Contains(v, "%s") {
			logger.Warn("%s: ignoring override for %s: %v", ID, e.Name, ErrInvalidTemplate)
			continue
		}
		h.engines[i].URL = v
	}
	h.last = handler.GetOr(ctx, h.state, lastEngineKey, "")
	return nil
}

// SetEngineURL stores and applies a URL template override for a configured engine
func (h *Handler) SetEngineURL(ctx context.Context, name, template string) error {
	if !strings.Contains(template, "%s") {
		return ErrInvalidTemplate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.engines {
		if e.Name != name {
			continue
		}
		if err := h.settings.Set(ctx, urlKeyPrefix+name, template); err != nil {
			return fmt.Errorf("failed to store %s override: %w", name, err)
		}
		h.engines[i].URL = template
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownEngine, name)
}

// Engines returns the engines in offer order: last used first, then configured order
func (h *Handler) Engines() []Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Engine, 0, len(h.engines))
	for _, e := range h.engines {
		if e.Name == h.last {
			out = append(out, e)
		}
	}
	for _, e := range h.engines {
		if e.Name != h.last {
			out = append(out, e)
		}
	}
	return out
}

// Fallbacks offers every engine for a query that produced no results
func (h *Handler) Fallbacks(query string) []*model.Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	engines := h.Engines()
	items := make([]*model.Item, len(engines))
	for i, e := range engines {
		items[i] = h.item(e, query)
	}
	return items
}

// HandleTriggerQuery offers every engine for the remainder
func (h *Handler) HandleTriggerQuery(q handler.Query) error {
	q.Add(h.Fallbacks(q.String())...)
	return nil
}

func (h *Handler) item(e Engine, query string) *model.Item {
	target := e.SearchURL(query)
	return &model.Item{
		ID:              e.Name,
		Text:            fmt.Sprintf("Search %s for '%s'", e.Name, query),
		Subtext:         target,
		IconURLs:        []string{model.XDGIcon("web-browser"), model.GeneratedIcon("", "", initial(e.Name), 0)},
		InputActionText: query,
		Actions: []model.Action{
			{
				ID:            "open",
				Text:          "Open in browser",
				HideOnTrigger: true,
				Run:           func() error { return h.open(e.Name, target) },
			},
			{
				ID:   "copy",
				Text: "Copy URL",
				Run:  func() error { return h.launcher.Copy(target) },
			},
		},
	}
}

func initial(name string) string {
	if r, _ := utf8.DecodeRuneInString(name); r != utf8.RuneError {
		return string(r)
	}
	return "?"
}

func (h *Handler) open(engine, target string) error {
	if err := h.launcher.Open(target); err != nil {
		return err
	}

	h.mu.Lock()
	h.last = engine
	h.mu.Unlock()
	if err := h.state.Set(context.Background(), lastEngineKey, engine); err != nil {
		logger.Warn("%s: failed to remember last engine: %v", ID, err)
	}
	return nil
}

var (
	_ handler.TriggerHandler  = (*Handler)(nil)
	_ handler.FallbackHandler = (*Handler)(nil)
)
