// Package query dispatches user input to handlers and merges their results.
//
// StartQuery supersedes the previous execution, routes triggered input to one
// handler exclusively and fans untriggered input out to every global handler.
// Results reach the Observer incrementally through the configured Poster.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/model"
	"github.com/igusev/launchq/internal/registry"
	"github.com/igusev/launchq/internal/usage"
)

// ErrNoAction is returned when activating an item without the requested action
var ErrNoAction = errors.New("item has no such action")

// Option configures an Engine
type Option func(*Engine)

// WithScoring enables usage re-ranking and activation recording
func WithScoring(s *usage.Scoring) Option {
	return func(e *Engine) { e.scoring = s }
}

// WithPool runs handler work on p
func WithPool(p *executor.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithPoster delivers observer events through p, typically the UI loop
func WithPoster(p executor.Poster) Option {
	return func(e *Engine) { e.poster = p }
}

// WithObserver receives execution events
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithFallbacks toggles consulting fallback handlers on empty results
func WithFallbacks(enabled bool) Option {
	return func(e *Engine) { e.fallbacks = enabled }
}

// Engine owns query dispatch for one frontend
type Engine struct {
	registry  *registry.Registry
	scoring   *usage.Scoring
	pool      *executor.Pool
	poster    executor.Poster
	observer  Observer
	fallbacks bool

	mu      sync.Mutex
	current *Execution
	closed  bool
	slots   map[string]chan struct{} // One running query per handler
	work    sync.WaitGroup
}

// New creates an engine dispatching to the extensions of reg
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		poster:    executor.Inline,
		fallbacks: true,
		slots:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = executor.NewPool(0)
	}
	return e
}

// Registry returns the extension registry
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Scoring returns the usage scoring, possibly nil
func (e *Engine) Scoring() *usage.Scoring { return e.scoring }

// Current returns the latest execution, nil before the first query
func (e *Engine) Current() *Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// StartQuery supersedes the running execution and dispatches input
func (e *Engine) StartQuery(input string) *Execution {
	x := newExecution(e, input, e.usageScores())
	table := e.registry.Table()
	h, trigger, remainder, triggered := table.Match(input)
	if triggered {
		x.handler, x.trigger, x.remainder = h, trigger, remainder
	}
	x.fallbacks = table.Fallbacks()

	e.mu.Lock()
	prev := e.current
	e.current = x
	closed := e.closed
	e.mu.Unlock()

	if prev != nil {
		prev.abandon(Superseded)
		logger.Debug("query %s superseded by %s", prev.id, x.id)
	}
	if closed {
		x.abandon(Cancelled)
		return x
	}

	x.transition(Dispatching)
	if triggered {
		x.transition(Exclusive)
		e.dispatchTriggered(x, h)
	} else {
		x.transition(Aggregating)
		e.dispatchGlobal(x, table.Global())
	}
	return x
}

// Activate runs an action of a result and records the activation for usage scoring.
// An empty actionID selects the item's first action.
func (e *Engine) Activate(ctx context.Context, r Result, actionID string) error {
	if r.Item == nil || len(r.Item.Actions) == 0 {
		return ErrNoAction
	}
	action := r.Item.Actions[0]
	if actionID != "" {
		a, ok := r.Item.Action(actionID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoAction, actionID)
		}
		action = a
	}

	if action.Run != nil {
		if err := action.Run(); err != nil {
			return fmt.Errorf("%s/%s: %s failed: %w", r.ExtensionID, r.Item.ID, action.ID, err)
		}
	}

	if e.scoring != nil {
		if err := e.scoring.Record(ctx, r.ExtensionID, r.Item.ID); err != nil {
			logger.Warn("failed to record activation of %s/%s: %v", r.ExtensionID, r.Item.ID, err)
		}
	}
	return nil
}

// Close cancels the current execution and waits for all handler work to exit.
// The Poster must keep accepting (or dropping) events until Close returns.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	cur := e.current
	e.mu.Unlock()

	if cur != nil {
		cur.abandon(Cancelled)
	}
	e.work.Wait()
	return nil
}

func (e *Engine) usageScores() handler.UsageScorer {
	if e.scoring == nil {
		return (*usage.Snapshot)(nil)
	}
	return e.scoring.Snapshot()
}

func (e *Engine) dispatchTriggered(x *Execution, h handler.Triggerable) {
	id := h.ID()
	v := &view{x: x, extensionID: id, query: x.remainder, sink: x.add}

	switch th := h.(type) {
	case handler.GeneratorHandler:
		x.stream = executor.NewStream(e.guard(x, id, func() iter.Seq[[]*model.Item] { return th.Items(v) }),
			func(batch []*model.Item) { v.Add(batch...) },
			func(err error) {
				if err != nil {
					logger.Warn("query %s: %s failed: %v", x.id, id, err)
				}
				e.complete(x)
			},
			executor.WithPool(e.pool), executor.WithName(id))
		x.stream.Next()

	case handler.TriggerHandler:
		e.spawn(x, func() {
			defer e.complete(x)
			if !e.acquire(x.ctx, id) {
				return
			}
			defer e.release(id)
			if !x.IsValid() {
				return
			}
			safeCall(x, id, func() (struct{}, error) {
				return struct{}{}, th.HandleTriggerQuery(v)
			})
		})

	default:
		logger.Warn("query %s: %s cannot answer triggered queries", x.id, id)
		e.complete(x)
	}
}

// guard holds the handler's slot while generator code runs.
// The slot is free while the generator waits for the next pull.
func (e *Engine) guard(x *Execution, id string, items func() iter.Seq[[]*model.Item]) iter.Seq[[]*model.Item] {
	return func(yield func([]*model.Item) bool) {
		if !e.acquire(x.ctx, id) {
			return
		}
		held := true
		defer func() {
			if held {
				e.release(id)
			}
		}()
		for batch := range items() {
			if !x.IsValid() {
				return
			}
			e.release(id)
			held = false
			if !yield(batch) {
				return
			}
			if !e.acquire(x.ctx, id) {
				return
			}
			held = true
		}
	}
}

func (e *Engine) dispatchGlobal(x *Execution, handlers []handler.GlobalHandler) {
	if len(handlers) == 0 {
		e.complete(x)
		return
	}

	buckets := make([][]Result, len(handlers))
	var remaining atomic.Int32
	remaining.Store(int32(len(handlers)))

	for i, h := range handlers {
		e.spawn(x, func() {
			defer func() {
				if remaining.Add(-1) == 0 {
					e.merge(x, buckets)
					e.complete(x)
				}
			}()
			buckets[i] = e.runGlobal(x, h)
			x.add(buckets[i])
		})
	}
}

// runGlobal returns one handler's results, usage-rescored and sorted
func (e *Engine) runGlobal(x *Execution, h handler.GlobalHandler) []Result {
	id := h.ID()
	if !e.acquire(x.ctx, id) {
		return nil
	}
	defer e.release(id)
	if !x.IsValid() {
		return nil
	}

	var mu sync.Mutex
	var added []Result
	v := &view{x: x, extensionID: id, query: x.input, sink: func(r []Result) {
		mu.Lock()
		added = append(added, r...)
		mu.Unlock()
	}}

	items, ok := safeCall(x, id, func() ([]model.RankItem, error) {
		return h.HandleGlobalQuery(v)
	})
	if !ok || !x.IsValid() {
		return nil
	}

	x.scores.ModifyMatchScores(id, items)
	handler.SortRankItems(items)

	out := make([]Result, 0, len(items)+len(added))
	for _, ri := range items {
		out = append(out, Result{Item: ri.Item, ExtensionID: id, Score: ri.Score})
	}
	mu.Lock()
	out = append(out, added...)
	mu.Unlock()
	return out
}

// merge publishes all global results in registration order, stably sorted by score
func (e *Engine) merge(x *Execution, buckets [][]Result) {
	if !x.IsValid() {
		return
	}
	var merged []Result
	for _, b := range buckets {
		merged = append(merged, b...)
	}
	SortResults(merged)
	x.reset(merged)
}

// complete consults fallbacks on empty results and finishes the execution
func (e *Engine) complete(x *Execution) {
	if !x.transition(Completing) {
		return
	}

	if e.fallbacks && x.Len() == 0 {
		for _, f := range x.fallbacks {
			if !x.IsValid() {
				return
			}
			id := f.ID()
			items, ok := safeCall(x, id, func() ([]*model.Item, error) {
				return f.Fallbacks(x.remainder), nil
			})
			if !ok {
				continue
			}
			results := make([]Result, len(items))
			for i, it := range items {
				results[i] = Result{Item: it, ExtensionID: id}
			}
			x.add(results)
		}
	}

	x.transition(Done)
}

func (e *Engine) spawn(x *Execution, fn func()) {
	e.work.Add(1)
	x.work.Add(1)
	e.pool.Go(func() {
		defer e.work.Done()
		defer x.work.Done()
		fn()
	})
}

// detach runs fn on its own goroutine, outside the worker pool
func (e *Engine) detach(x *Execution, fn func()) {
	e.work.Add(1)
	x.work.Add(1)
	go func() {
		defer e.work.Done()
		defer x.work.Done()
		fn()
	}()
}

func (e *Engine) slot(id string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		e.slots[id] = s
	}
	return s
}

// acquire waits for the handler's slot. Returns false if ctx ended first.
func (e *Engine) acquire(ctx context.Context, id string) bool {
	select {
	case e.slot(id) <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) release(id string) {
	<-e.slot(id)
}

func (e *Engine) publish(ev Event) {
	if e.observer == nil {
		return
	}
	observer := e.observer
	e.poster.Post(func() {
		if ev.Kind != EventState && !ev.Execution.IsValid() {
			return
		}
		observer(ev)
	})
}

// safeCall runs handler code, turning errors and panics into "no results"
func safeCall[T any](x *Execution, extensionID string, fn func() (T, error)) (result T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("query %s: %s panicked: %v", x.id, extensionID, r)
			var zero T
			result, ok = zero, false
		}
	}()

	result, err := fn()
	if err != nil {
		var zero T
		if errors.Is(err, context.Canceled) || !x.IsValid() {
			logger.Debug("query %s: %s stopped: %v", x.id, extensionID, err)
			return zero, false
		}
		logger.Warn("query %s: %s failed: %v", x.id, extensionID, err)
		return zero, false
	}
	return result, true
}

// SortResults sorts by score descending, keeping the order of equal scores
func SortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
}
