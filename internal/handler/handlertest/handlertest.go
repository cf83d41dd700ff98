// Package handlertest provides a synchronous Query for exercising handlers in tests
package handlertest

import (
	"context"
	"sync"

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/model"
)

// Query records the items a handler adds
type Query struct {
	Input      string
	TriggerStr string
	Scorer     handler.UsageScorer

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	items []*model.Item
}

// NewQuery creates a valid query for input
func NewQuery(input string) *Query {
	ctx, cancel := context.WithCancel(context.Background())
	return &Query{Input: input, ctx: ctx, cancel: cancel}
}

// String returns the input
func (q *Query) String() string { return q.Input }

// Trigger returns the trigger
func (q *Query) Trigger() string { return q.TriggerStr }

// IsValid reports whether Cancel has not been called
func (q *Query) IsValid() bool { return q.ctx.Err() == nil }

// Context returns the query context
func (q *Query) Context() context.Context { return q.ctx }

// UsageScores returns the configured scorer, possibly nil
func (q *Query) UsageScores() handler.UsageScorer { return q.Scorer }

// Cancel invalidates the query
func (q *Query) Cancel() { q.cancel() }

// Add records items while the query is valid
func (q *Query) Add(items ...*model.Item) {
	if !q.IsValid() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Items returns the recorded items
func (q *Query) Items() []*model.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*model.Item, len(q.items))
	copy(out, q.items)
	return out
}

// IDs returns the ids of the recorded items
func (q *Query) IDs() []string {
	items := q.Items()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

var _ handler.Query = (*Query)(nil)
