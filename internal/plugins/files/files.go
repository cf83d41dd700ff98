// Package files finds files below the configured roots behind the "f " trigger.
// Results are produced lazily in batches as the tree is walked.
package files

import (
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "files"

// DefaultBatchSize is the number of items per generator step
const DefaultBatchSize = 50

// scanChunk is how many walked paths are fuzzy matched at once
const scanChunk = 256

var errStopped = errors.New("consumer stopped")

// Handler is a generator: each step yields the next batch of matching paths
type Handler struct {
	handler.Base

	roots     []string
	batchSize int
	maxDepth  int
	launcher  *desktop.Launcher
}

// New creates the handler. batchSize <= 0 means DefaultBatchSize.
func New(roots []string, batchSize, maxDepth int, launcher *desktop.Launcher) *Handler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if launcher == nil {
		launcher = desktop.Default
	}
	return &Handler{
		Base:      handler.NewBase(ID, "Files", "Find files and directories"),
		roots:     roots,
		batchSize: batchSize,
		maxDepth:  maxDepth,
		launcher:  launcher,
	}
}

// DefaultTrigger is "f "
func (h *Handler) DefaultTrigger() string { return "f " }

// Synopsis is shown until a pattern is typed
func (h *Handler) Synopsis(string) string { return "<path pattern>" }

// candidate is a walked path waiting to be matched
type candidate struct {
	root  string
	rel   string
	isDir bool
}

// Items walks the roots and yields batches of matching paths.
// An empty query yields every path in walk order.
func (h *Handler) Items(q handler.Query) iter.Seq[[]*model.Item] {
	return func(yield func([]*model.Item) bool) {
		pattern := strings.ReplaceAll(strings.TrimSpace(q.String()), " ", "")
		scorer := q.UsageScores()

		var chunk []candidate
		var ready []model.RankItem

		emit := func(final bool) bool {
			for len(ready) >= h.batchSize || (final && len(ready) > 0) {
				n := min(h.batchSize, len(ready))
				batch := ready[:n:n]
				ready = ready[n:]

				if scorer != nil {
					scorer.ModifyMatchScores(h.ID(), batch)
				}
				handler.SortRankItems(batch)

				items := make([]*model.Item, n)
				for i, ri := range batch {
					items[i] = ri.Item
				}
				if !yield(items) {
					return false
				}
			}
			return true
		}

		flush := func() {
			ready = append(ready, h.match(pattern, chunk, q.Trigger())...)
			chunk = chunk[:0]
		}

		for _, root := range h.roots {
			err := Walk(q.Context(), root, h.maxDepth, func(rel string, isDir bool) error {
				chunk = append(chunk, candidate{root: root, rel: rel, isDir: isDir})
				if len(chunk) < scanChunk {
					return nil
				}
				flush()
				if !emit(false) {
					return errStopped
				}
				return nil
			})
			if err != nil {
				return
			}
		}

		flush()
		emit(true)
	}
}

// chunkSource adapts candidates to fuzzy.Source
type chunkSource []candidate

func (c chunkSource) String(i int) string { return c[i].rel }
func (c chunkSource) Len() int            { return len(c) }

// match fuzzy matches pattern against the chunk's relative paths, best first.
// Scores depend only on the pattern and the path, so they compare across chunks.
func (h *Handler) match(pattern string, chunk []candidate, trigger string) []model.RankItem {
	if len(chunk) == 0 {
		return nil
	}
	if pattern == "" {
		out := make([]model.RankItem, len(chunk))
		for i, c := range chunk {
			out[i] = model.RankItem{Item: h.item(c, trigger), Score: 0}
		}
		return out
	}

	matches := fuzzy.FindFrom(pattern, chunkSource(chunk))
	if len(matches) == 0 {
		return nil
	}
	bound := scoreBound(pattern)

	out := make([]model.RankItem, len(matches))
	for i, m := range matches {
		out[i] = model.RankItem{
			Item:  h.item(chunk[m.Index], trigger),
			Score: normalize(m.Score, bound),
		}
	}
	return out
}

// scoreBound is the fuzzy score of pattern against itself, always positive
func scoreBound(pattern string) int {
	if m := fuzzy.Find(pattern, []string{pattern}); len(m) > 0 && m[0].Score > 0 {
		return m[0].Score
	}
	return 1
}

// normalize maps a raw fuzzy score into (0,1], monotonically.
// Scores at or above bound map to 1, a score of 0 maps to 0.5.
func normalize(score, bound int) float64 {
	if score >= bound {
		return 1
	}
	return float64(bound) / float64(2*bound-score)
}

func (h *Handler) item(c candidate, trigger string) *model.Item {
	path := filepath.Join(c.root, c.rel)
	icon := model.XDGIcon("text-x-generic")
	if c.isDir {
		icon = model.XDGIcon("folder")
	}
	if trigger == "" {
		trigger = h.DefaultTrigger()
	}

	return &model.Item{
		ID:              path,
		Text:            filepath.Base(c.rel),
		Subtext:         displayDir(path),
		IconURLs:        []string{icon},
		InputActionText: trigger + filepath.ToSlash(c.rel),
		Actions: []model.Action{
			{
				ID:            "open",
				Text:          "Open",
				HideOnTrigger: true,
				Run:           func() error { return h.launcher.Open(path) },
			},
			{
				ID:            "open-dir",
				Text:          "Open containing folder",
				HideOnTrigger: true,
				Run:           func() error { return h.launcher.Open(filepath.Dir(path)) },
			},
			{
				ID:   "copy-path",
				Text: "Copy path",
				Run:  func() error { return h.launcher.Copy(path) },
			},
		},
	}
}

// displayDir shortens the parent directory with ~ for the home directory
func displayDir(path string) string {
	dir := filepath.Dir(path)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if dir == home {
			return "~"
		}
		if rest, ok := strings.CutPrefix(dir, home+string(filepath.Separator)); ok {
			return filepath.Join("~", rest)
		}
	}
	return dir
}

var _ handler.GeneratorHandler = (*Handler)(nil)
