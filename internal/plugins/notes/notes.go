// Package notes searches a directory of markdown notes by title and content
package notes

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/match"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "notes"

const (
	// maxFullTextHits bounds the content matches considered per query
	maxFullTextHits = 50
	// contentScoreWeight caps scores of notes that matched only in their content
	contentScoreWeight = 0.5
)

// generation is one immutable set of indexed notes
type generation struct {
	notes []*Note
	byID  map[string]*model.Item
}

// Handler matches note titles structurally and falls back to bleve relevance
// for notes whose content matches
type Handler struct {
	handler.Base

	dir      string
	matchCfg match.Config
	launcher *desktop.Launcher

	fulltext *index.FullText
	current  atomic.Pointer[generation]
	rebuild  *executor.Executor[*generation]
}

// New creates the handler. Call Rebuild to read the notes.
func New(dir string, matchCfg match.Config, launcher *desktop.Launcher, opts ...executor.Option) (*Handler, error) {
	if launcher == nil {
		launcher = desktop.Default
	}
	ft, err := index.NewFullText()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ID, err)
	}

	h := &Handler{
		Base:     handler.NewBase(ID, "Notes", "Search markdown notes by title and content"),
		dir:      dir,
		matchCfg: matchCfg,
		launcher: launcher,
		fulltext: ft,
	}
	h.current.Store(&generation{byID: map[string]*model.Item{}})

	opts = append([]executor.Option{executor.WithName(ID + " index")}, opts...)
	h.rebuild = executor.New(h.build, func(g *generation) {
		h.current.Store(g)
		logger.Debug("%s: indexed %d notes", ID, len(g.notes))
	}, opts...)
	return h, nil
}

// Synopsis hints at the searched fields
func (h *Handler) Synopsis(string) string { return "<title or text>" }

// Rebuild schedules a rescan of the notes directory
func (h *Handler) Rebuild() { h.rebuild.Run() }

// WaitForIndex blocks until pending rebuilds are applied or ctx ends
func (h *Handler) WaitForIndex(ctx context.Context) error {
	return h.rebuild.WaitForFinished(ctx)
}

// Close stops a running rebuild and releases the full-text index
func (h *Handler) Close() error {
	if err := h.rebuild.Close(); err != nil {
		return err
	}
	return h.fulltext.Close()
}

func (h *Handler) build(ctx context.Context) (*generation, error) {
	notes, err := ReadNotes(ctx, h.dir)
	if err != nil {
		return nil, err
	}

	docs := make([]index.Document, len(notes))
	g := &generation{notes: notes, byID: make(map[string]*model.Item, len(notes))}
	for i, n := range notes {
		docs[i] = index.Document{ID: n.Path, Title: n.Title, Body: n.Body}
		g.byID[n.Path] = h.item(n)
	}

	if err := h.fulltext.Replace(ctx, docs); err != nil {
		return nil, err
	}
	return g, nil
}

// HandleGlobalQuery scores notes: a title match keeps its match score, a note
// found only by content gets its bleve relevance scaled below contentScoreWeight.
// An empty query returns nothing.
func (h *Handler) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	input := strings.TrimSpace(q.String())
	if input == "" {
		return nil, nil
	}
	g := h.current.Load()

	matcher := match.New(input, h.matchCfg)
	scored := make(map[string]float64)
	for _, n := range g.notes {
		if m := matcher.Match(n.Title); m.IsMatch() {
			scored[n.Path] = m.Score()
		}
	}

	hits, err := h.fulltext.Search(q.Context(), input, maxFullTextHits)
	if err != nil {
		if q.Context().Err() != nil {
			return nil, nil
		}
		return nil, err
	}
	var top float64
	for _, hit := range hits {
		top = max(top, hit.Score)
	}

	out := make([]model.RankItem, 0, len(scored)+len(hits))
	for _, n := range g.notes {
		if s, ok := scored[n.Path]; ok {
			out = append(out, model.RankItem{Item: g.byID[n.Path], Score: s})
		}
	}
	for _, hit := range hits {
		item, ok := g.byID[hit.ID]
		if _, dup := scored[hit.ID]; dup || !ok || top <= 0 {
			continue
		}
		out = append(out, model.RankItem{Item: withSnippet(item, hit.Snippet), Score: contentScoreWeight * hit.Score / top})
	}
	return out, nil
}

// HandleTriggerQuery lists matching notes, best first
func (h *Handler) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *Handler) item(n *Note) *model.Item {
	path := filepath.Join(h.dir, filepath.FromSlash(n.Path))
	return &model.Item{
		ID:              n.Path,
		Text:            n.Title,
		Subtext:         n.Path,
		IconURLs:        []string{model.XDGIcon("text-markdown"), model.GeneratedIcon("", "", "N", 0)},
		InputActionText: n.Title,
		Actions: []model.Action{
			{
				ID:            "open",
				Text:          "Open note",
				HideOnTrigger: true,
				Run:           func() error { return h.launcher.Open(path) },
			},
			{
				ID:   "copy-path",
				Text: "Copy path",
				Run:  func() error { return h.launcher.Copy(path) },
			},
		},
	}
}

// withSnippet returns a copy of item showing the matched text as subtext.
// Items are shared, so the original is never modified.
func withSnippet(item *model.Item, snippet string) *model.Item {
	if snippet == "" {
		return item
	}
	c := *item
	c.Subtext = strings.Join(strings.Fields(snippet), " ")
	return &c
}

// ReadNotes parses every .md file below dir. A missing dir yields no notes.
func ReadNotes(ctx context.Context, dir string) ([]*Note, error) {
	var notes []*Note
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(path) {
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path is below the configured notes dir
		if err != nil {
			logger.Debug("%s: skipping %s: %v", ID, path, err)
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		n := ParseNote(filepath.ToSlash(rel), data)
		notes = append(notes, &n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	return notes, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

var _ handler.GlobalHandler = (*Handler)(nil)
