package handler

import (
	"context"
	"fmt"

	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/model"
)

// ItemsFunc collects the lookup pairs of an index generation
type ItemsFunc func(ctx context.Context) ([]model.IndexItem, error)

// Indexed backs a global handler with an ItemIndex.
// Rebuilds run one at a time on the executor; the new generation is swapped in
// by the finish callback while searches keep using the generation they started with.
type Indexed struct {
	index   *index.ItemIndex
	rebuild *executor.Executor[*index.Snapshot]
}

// NewIndexed creates an empty index. Call Rebuild to populate it.
func NewIndexed(id string, cfg index.Config, items ItemsFunc, opts ...executor.Option) (*Indexed, error) {
	idx, err := index.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	x := &Indexed{index: idx}
	opts = append([]executor.Option{executor.WithName(id + " index")}, opts...)
	x.rebuild = executor.New(func(ctx context.Context) (*index.Snapshot, error) {
		pairs, err := items(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect items: %w", err)
		}
		return idx.Build(ctx, pairs)
	}, func(s *index.Snapshot) {
		idx.Swap(s)
		logger.Debug("%s: indexed %d lookups, %d words", id, s.Len(), s.WordCount())
	}, opts...)
	return x, nil
}

// Rebuild schedules a rebuild. Requests made while one runs collapse into a single rerun.
func (x *Indexed) Rebuild() {
	x.rebuild.Run()
}

// WaitForIndex blocks until pending rebuilds are swapped in or ctx ends
func (x *Indexed) WaitForIndex(ctx context.Context) error {
	return x.rebuild.WaitForFinished(ctx)
}

// Rebuilding reports whether a rebuild is in flight
func (x *Indexed) Rebuilding() bool {
	return x.rebuild.IsRunning()
}

// Search matches the query string against the current generation
func (x *Indexed) Search(q Query) []model.RankItem {
	return x.index.Search(q.Context(), q.String())
}

// SetFuzzy toggles edit-tolerant lookup
func (x *Indexed) SetFuzzy(fuzzy bool) {
	x.index.SetFuzzy(fuzzy)
}

// Index exposes the underlying index
func (x *Indexed) Index() *index.ItemIndex {
	return x.index
}

// Close stops a running rebuild and waits for it to exit
func (x *Indexed) Close() error {
	return x.rebuild.Close()
}
