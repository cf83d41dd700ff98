package query

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/model"
)

// Result is one visible item together with the extension that produced it
type Result struct {
	Item        *model.Item
	ExtensionID string
	Score       float64 // Blended score in global mode, 0 otherwise
}

// Execution is one keystroke-triggered query. It is invalidated when superseded;
// handler goroutines may still hold it and finish silently afterwards.
type Execution struct {
	id        string
	input     string
	trigger   string
	remainder string
	handler   handler.Triggerable // Nil for global queries
	fallbacks []handler.FallbackHandler

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	scores handler.UsageScorer
	engine *Engine

	mu      sync.RWMutex
	results []Result

	stream   *executor.Stream[[]*model.Item]
	work     sync.WaitGroup
	finished chan struct{}
	once     sync.Once
}

func newExecution(e *Engine, input string, scores handler.UsageScorer) *Execution {
	ctx, cancel := context.WithCancel(context.Background())
	x := &Execution{
		id:        uuid.NewString(),
		input:     input,
		remainder: input,
		ctx:       ctx,
		cancel:    cancel,
		scores:    scores,
		engine:    e,
		finished:  make(chan struct{}),
	}
	x.state.Store(int32(Created))
	return x
}

// ID is a unique id used in logs
func (x *Execution) ID() string { return x.id }

// Input returns the raw input
func (x *Execution) Input() string { return x.input }

// Trigger returns the matched trigger, empty for global queries
func (x *Execution) Trigger() string { return x.trigger }

// String returns the remainder after the trigger, or the full input
func (x *Execution) String() string { return x.remainder }

// Triggered reports whether a single triggered handler answers this query
func (x *Execution) Triggered() bool { return x.handler != nil }

// Handler returns the triggered handler, nil for global queries
func (x *Execution) Handler() handler.Triggerable { return x.handler }

// Synopsis returns the triggered handler's hint while the remainder is empty
func (x *Execution) Synopsis() string {
	if x.handler == nil || x.remainder != "" {
		return ""
	}
	return x.handler.Synopsis(x.remainder)
}

// IsValid reports whether the execution was neither cancelled nor superseded
func (x *Execution) IsValid() bool { return x.ctx.Err() == nil }

// Context is cancelled when the execution becomes invalid
func (x *Execution) Context() context.Context { return x.ctx }

// State returns the lifecycle state
func (x *Execution) State() State { return State(x.state.Load()) }

// IsActive reports whether handlers are still producing results
func (x *Execution) IsActive() bool {
	if x.State().Terminal() {
		return false
	}
	if x.stream != nil {
		return x.stream.IsRunning()
	}
	return true
}

// CanFetchMore reports whether a generator has more batches
func (x *Execution) CanFetchMore() bool {
	return x.stream != nil && !x.stream.Exhausted() && x.IsValid()
}

// FetchMore requests the next generator batch. Returns false when none remain.
func (x *Execution) FetchMore() bool {
	if !x.CanFetchMore() {
		return false
	}
	return x.stream.Next()
}

// Results returns a copy of the current results
func (x *Execution) Results() []Result {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Result, len(x.results))
	copy(out, x.results)
	return out
}

// Items returns the current result items
func (x *Execution) Items() []*model.Item {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*model.Item, len(x.results))
	for i, r := range x.results {
		out[i] = r.Item
	}
	return out
}

// Len returns the number of results
func (x *Execution) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.results)
}

// Cancel invalidates the execution
func (x *Execution) Cancel() {
	x.abandon(Cancelled)
}

// Wait blocks until the execution is terminal and no handler work references it
func (x *Execution) Wait(ctx context.Context) error {
	select {
	case <-x.finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	idle := make(chan struct{})
	go func() {
		x.work.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the execution reaches a terminal state
func (x *Execution) Done() <-chan struct{} {
	return x.finished
}

// add appends results and publishes them. Dropped once invalid.
func (x *Execution) add(results []Result) {
	if len(results) == 0 {
		return
	}
	x.mu.Lock()
	if !x.IsValid() {
		x.mu.Unlock()
		return
	}
	x.results = append(x.results, results...)
	x.mu.Unlock()

	x.engine.publish(Event{Execution: x, Kind: EventAdded, Items: results})
}

// reset replaces the results and publishes them. Dropped once invalid.
func (x *Execution) reset(results []Result) {
	x.mu.Lock()
	if !x.IsValid() {
		x.mu.Unlock()
		return
	}
	x.results = results
	x.mu.Unlock()

	out := make([]Result, len(results))
	copy(out, results)
	x.engine.publish(Event{Execution: x, Kind: EventReset, Items: out})
}

// transition moves to s unless the execution already reached a terminal state
func (x *Execution) transition(s State) bool {
	for {
		cur := State(x.state.Load())
		if cur.Terminal() {
			return false
		}
		if x.state.CompareAndSwap(int32(cur), int32(s)) {
			x.engine.publish(Event{Execution: x, Kind: EventState, State: s})
			if s.Terminal() {
				x.once.Do(func() { close(x.finished) })
			}
			return true
		}
	}
}

// abandon invalidates the execution with a terminal reason
func (x *Execution) abandon(reason State) {
	x.cancel()
	if !x.transition(reason) {
		return
	}
	if x.stream != nil {
		stream := x.stream
		x.engine.detach(x, func() { _ = stream.Close() })
	}
}

// view is the handler.Query given to one handler
type view struct {
	x           *Execution
	extensionID string
	query       string
	sink        func([]Result)
}

func (v *view) String() string                   { return v.query }
func (v *view) Trigger() string                  { return v.x.trigger }
func (v *view) IsValid() bool                    { return v.x.IsValid() }
func (v *view) Context() context.Context         { return v.x.ctx }
func (v *view) UsageScores() handler.UsageScorer { return v.x.scores }

func (v *view) Add(items ...*model.Item) {
	if len(items) == 0 || !v.x.IsValid() {
		return
	}
	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{Item: it, ExtensionID: v.extensionID}
	}
	v.sink(results)
}

var _ handler.Query = (*view)(nil)
