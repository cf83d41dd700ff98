// Package apps offers installed desktop applications as global results
package apps

import (
	"context"
	"path/filepath"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "apps"

// DefaultTerminal wraps entries with Terminal=true
var DefaultTerminal = []string{"x-terminal-emulator", "-e"}

// Handler indexes .desktop entries under its dirs by name, generic name,
// keywords and executable
type Handler struct {
	handler.Base
	*handler.Indexed

	dirs     []string
	launcher *desktop.Launcher
	terminal []string
}

// New creates the handler. Call Rebuild to scan the dirs.
func New(dirs []string, cfg index.Config, launcher *desktop.Launcher, opts ...executor.Option) (*Handler, error) {
	if launcher == nil {
		launcher = desktop.Default
	}
	h := &Handler{
		Base:     handler.NewBase(ID, "Applications", "Launch installed desktop applications"),
		dirs:     dirs,
		launcher: launcher,
		terminal: DefaultTerminal,
	}

	x, err := handler.NewIndexed(ID, cfg, h.items, opts...)
	if err != nil {
		return nil, err
	}
	h.Indexed = x
	return h, nil
}

// HandleGlobalQuery returns the matching applications with their match scores
func (h *Handler) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	return h.Search(q), nil
}

// HandleTriggerQuery lists the matching applications, best first
func (h *Handler) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *Handler) items(ctx context.Context) ([]model.IndexItem, error) {
	entries, err := Scan(h.dirs)
	if err != nil {
		return nil, err
	}

	var out []model.IndexItem
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		item := h.item(e)
		lookups := append([]string{e.Name, e.GenericName, e.Executable()}, e.Keywords...)
		out = append(out, model.NewIndexItems(item, lookups...)...)
	}
	return out, nil
}

func (h *Handler) item(e *Entry) *model.Item {
	subtext := e.Comment
	if subtext == "" {
		subtext = e.GenericName
	}

	return &model.Item{
		ID:              e.ID,
		Text:            e.Name,
		Subtext:         subtext,
		IconURLs:        iconURLs(e.Icon),
		InputActionText: e.Name,
		Actions: []model.Action{
			{
				ID:            "launch",
				Text:          "Launch",
				HideOnTrigger: true,
				Run:           func() error { return h.launch(e) },
			},
			{
				ID:   "copy-exec",
				Text: "Copy command line",
				Run:  func() error { return h.launcher.Copy(e.Exec) },
			},
		},
	}
}

func (h *Handler) launch(e *Entry) error {
	argv, err := e.ExecArgs()
	if err != nil {
		return err
	}
	if e.Terminal && len(h.terminal) > 0 {
		argv = append(append([]string{}, h.terminal...), argv...)
	}
	return h.launcher.Launch(argv)
}

func iconURLs(icon string) []string {
	urls := make([]string, 0, 2)
	switch {
	case icon == "":
	case filepath.IsAbs(icon):
		urls = append(urls, model.FileIcon(icon))
	default:
		urls = append(urls, model.XDGIcon(icon))
	}
	return append(urls, model.XDGIcon("application-x-executable"))
}

var _ handler.GlobalHandler = (*Handler)(nil)
