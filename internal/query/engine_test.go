package query

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/model"
	"github.com/igusev/launchq/internal/registry"
	"github.com/igusev/launchq/internal/usage"
)

// staticGlobal returns fixed scored items
type staticGlobal struct {
	handler.Base
	items   []model.RankItem
	calls   atomic.Int32
	err     error
	panics  bool
	release chan struct{} // Blocks HandleGlobalQuery until closed or the query ends
}

func newGlobal(id string, items ...model.RankItem) *staticGlobal {
	return &staticGlobal{Base: handler.NewBase(id, id, ""), items: items}
}

func (h *staticGlobal) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *staticGlobal) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	h.calls.Add(1)
	if h.release != nil {
		select {
		case <-h.release:
		case <-q.Context().Done():
			return nil, q.Context().Err()
		}
	}
	if h.panics {
		panic("handler bug")
	}
	out := make([]model.RankItem, len(h.items))
	copy(out, h.items)
	return out, h.err
}

// recordingTrigger records the query strings it receives
type recordingTrigger struct {
	handler.Base
	trigger string
	mu      sync.Mutex
	got     []string
}

func (h *recordingTrigger) DefaultTrigger() string { return h.trigger }

func (h *recordingTrigger) Synopsis(string) string { return "<host>" }

func (h *recordingTrigger) HandleTriggerQuery(q handler.Query) error {
	h.mu.Lock()
	h.got = append(h.got, q.String())
	h.mu.Unlock()
	q.Add(&model.Item{ID: "host:" + q.String(), Text: q.String()})
	return nil
}

type staticFallback struct {
	handler.Base
	text string
}

func (h *staticFallback) Fallbacks(query string) []*model.Item {
	return []*model.Item{{ID: h.ID(), Text: h.text + " " + query}}
}

// batchGenerator yields n batches of two items
type batchGenerator struct {
	handler.Base
	n       int
	stopped atomic.Bool
}

func (h *batchGenerator) DefaultTrigger() string { return "f " }

func (h *batchGenerator) Items(q handler.Query) iter.Seq[[]*model.Item] {
	return func(yield func([]*model.Item) bool) {
		defer h.stopped.Store(true)
		for i := 0; i < h.n; i++ {
			batch := []*model.Item{
				{ID: q.String() + string(rune('a'+2*i))},
				{ID: q.String() + string(rune('b'+2*i))},
			}
			if !yield(batch) {
				return
			}
		}
	}
}

func item(id string, score float64) model.RankItem {
	return model.RankItem{Item: &model.Item{ID: id, Text: id}, Score: score}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ExtensionID + "/" + r.Item.ID
	}
	return out
}

func waitDone(t *testing.T, x *Execution) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, x.Wait(ctx))
}

func newEngine(t *testing.T, exts []handler.Extension, opts ...Option) *Engine {
	t.Helper()
	reg := registry.New()
	for _, ext := range exts {
		require.NoError(t, reg.Register(ext))
	}
	e := New(reg, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_GlobalMergeAndSort(t *testing.T) {
	a := newGlobal("a", item("a1", 0.3), item("a2", 0.9))
	b := newGlobal("b", item("b1", 0.5), item("b2", 0.9))
	e := newEngine(t, []handler.Extension{a, b})

	x := e.StartQuery("query")
	waitDone(t, x)

	assert.Equal(t, Done, x.State())
	assert.False(t, x.Triggered())
	assert.Equal(t, []string{"a/a2", "b/b2", "b/b1", "a/a1"}, ids(x.Results()),
		"equal scores keep registration order")
}

func TestEngine_TriggerIsExclusive(t *testing.T) {
	ssh := &recordingTrigger{Base: handler.NewBase("ssh", "SSH", ""), trigger: "ssh "}
	apps := newGlobal("apps", item("firefox", 1))
	e := newEngine(t, []handler.Extension{ssh, apps})

	x := e.StartQuery("ssh myhost")
	waitDone(t, x)

	assert.True(t, x.Triggered())
	assert.Equal(t, "ssh ", x.Trigger())
	assert.Equal(t, "myhost", x.String())
	assert.Equal(t, []string{"myhost"}, ssh.got)
	assert.Equal(t, int32(0), apps.calls.Load(), "global handlers must not run for triggered input")
	assert.Equal(t, []string{"ssh/host:myhost"}, ids(x.Results()))
}

func TestEngine_Synopsis(t *testing.T) {
	ssh := &recordingTrigger{Base: handler.NewBase("ssh", "SSH", ""), trigger: "ssh "}
	e := newEngine(t, []handler.Extension{ssh})

	x := e.StartQuery("ssh ")
	waitDone(t, x)
	assert.Equal(t, "<host>", x.Synopsis())

	y := e.StartQuery("ssh h")
	waitDone(t, y)
	assert.Empty(t, y.Synopsis())
}

func TestEngine_UsageBreaksTies(t *testing.T) {
	log := usage.NewMemoryLog(usage.Activation{ExtensionID: "a", ItemID: "shared", Time: time.Now()})
	scoring, err := usage.New(usage.DefaultConfig(), log)
	require.NoError(t, err)
	require.NoError(t, scoring.Load(context.Background()))

	// b registers first so only usage can put a ahead
	b := newGlobal("b", item("shared", 0.8))
	a := newGlobal("a", item("shared", 0.8))
	e := newEngine(t, []handler.Extension{b, a}, WithScoring(scoring))

	x := e.StartQuery("shared")
	waitDone(t, x)

	assert.Equal(t, []string{"a/shared", "b/shared"}, ids(x.Results()))
}

func TestEngine_PerfectMatchOverridesUsage(t *testing.T) {
	var acts []usage.Activation
	for i := 0; i < 20; i++ {
		acts = append(acts, usage.Activation{ExtensionID: "apps", ItemID: "frequent", Time: time.Now()})
	}
	scoring, err := usage.New(usage.DefaultConfig(), usage.NewMemoryLog(acts...))
	require.NoError(t, err)
	require.NoError(t, scoring.Load(context.Background()))

	apps := newGlobal("apps", item("frequent", 0.99), item("exact", 1.0))
	e := newEngine(t, []handler.Extension{apps}, WithScoring(scoring))

	x := e.StartQuery("q")
	waitDone(t, x)
	assert.Equal(t, []string{"apps/exact", "apps/frequent"}, ids(x.Results()))
}

func TestEngine_IndexedHandlerScenario(t *testing.T) {
	firefox := &model.Item{ID: "a", Text: "Firefox"}
	files := &model.Item{ID: "b", Text: "File Manager"}
	cfg := index.DefaultConfig()
	cfg.Fuzzy = false
	idx, err := handler.NewIndexed("apps", cfg, func(context.Context) ([]model.IndexItem, error) {
		return []model.IndexItem{{Item: firefox, String: firefox.Text}, {Item: files, String: files.Text}}, nil
	})
	require.NoError(t, err)
	defer idx.Close()
	idx.Rebuild()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, idx.WaitForIndex(ctx))

	apps := &indexedGlobal{Base: handler.NewBase("apps", "Apps", ""), Indexed: idx}
	e := newEngine(t, []handler.Extension{apps})

	x := e.StartQuery("fi")
	waitDone(t, x)

	results := x.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Item.ID)
	assert.InDelta(t, 2.0/7, results[0].Score, 1e-9)
	assert.Equal(t, "b", results[1].Item.ID)
	assert.InDelta(t, 2.0/12, results[1].Score, 1e-9)
}

type indexedGlobal struct {
	handler.Base
	*handler.Indexed
}

func (h *indexedGlobal) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *indexedGlobal) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	return h.Search(q), nil
}

func TestEngine_FallbacksOnEmptyResults(t *testing.T) {
	empty := newGlobal("empty")
	web := &staticFallback{Base: handler.NewBase("web", "Web", ""), text: "Search"}
	ddg := &staticFallback{Base: handler.NewBase("ddg", "DDG", ""), text: "Ask"}
	e := newEngine(t, []handler.Extension{empty, web, ddg})

	x := e.StartQuery("golang")
	waitDone(t, x)

	results := x.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "Search golang", results[0].Item.Text)
	assert.Equal(t, "Ask golang", results[1].Item.Text)
	assert.Zero(t, results[0].Score, "fallbacks are not ranked")

	full := newEngine(t, []handler.Extension{newGlobal("apps", item("x", 0.5)), web})
	y := full.StartQuery("x")
	waitDone(t, y)
	assert.Equal(t, []string{"apps/x"}, ids(y.Results()))
}

func TestEngine_FallbacksDisabled(t *testing.T) {
	web := &staticFallback{Base: handler.NewBase("web", "Web", ""), text: "Search"}
	e := newEngine(t, []handler.Extension{web}, WithFallbacks(false))

	x := e.StartQuery("golang")
	waitDone(t, x)
	assert.Zero(t, x.Len())
}

func TestEngine_HandlerFaultsAreIsolated(t *testing.T) {
	broken := newGlobal("broken", item("never", 1))
	broken.err = errors.New("index corrupted")
	panicky := newGlobal("panicky", item("never", 1))
	panicky.panics = true
	healthy := newGlobal("healthy", item("ok", 0.5))
	e := newEngine(t, []handler.Extension{broken, panicky, healthy})

	x := e.StartQuery("q")
	waitDone(t, x)

	assert.Equal(t, Done, x.State())
	assert.Equal(t, []string{"healthy/ok"}, ids(x.Results()))
}

func TestEngine_Supersede(t *testing.T) {
	slow := newGlobal("slow", item("stale", 1))
	slow.release = make(chan struct{})

	var mu sync.Mutex
	var events []Event
	e := newEngine(t, []handler.Extension{slow}, WithObserver(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	first := e.StartQuery("a")
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := e.StartQuery("ab")
	assert.Equal(t, Superseded, first.State())
	assert.False(t, first.IsValid())
	assert.Same(t, second, e.Current())

	close(slow.release)
	waitDone(t, first)
	waitDone(t, second)

	assert.Zero(t, first.Len(), "superseded executions never receive results")
	assert.Equal(t, []string{"slow/stale"}, ids(second.Results()))

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		if ev.Execution == first && ev.Kind != EventState {
			t.Errorf("result event published for superseded execution: %+v", ev)
		}
	}
}

func TestEngine_OneExecutionPerHandler(t *testing.T) {
	var active, peak atomic.Int32
	h := &countingGlobal{Base: handler.NewBase("h", "H", ""), active: &active, peak: &peak}
	e := newEngine(t, []handler.Extension{h})

	var xs []*Execution
	for _, in := range []string{"a", "ab", "abc", "abcd"} {
		xs = append(xs, e.StartQuery(in))
	}
	for _, x := range xs {
		waitDone(t, x)
	}
	assert.Equal(t, int32(1), peak.Load())
}

type countingGlobal struct {
	handler.Base
	active, peak *atomic.Int32
}

func (h *countingGlobal) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *countingGlobal) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	n := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return nil, nil
}

func TestEngine_GeneratorFetchMore(t *testing.T) {
	gen := &batchGenerator{Base: handler.NewBase("files", "Files", ""), n: 2}
	e := newEngine(t, []handler.Extension{gen})

	x := e.StartQuery("f x")
	require.Eventually(t, func() bool { return x.Len() == 2 && !x.IsActive() }, time.Second, time.Millisecond)
	assert.Equal(t, Exclusive, x.State())
	assert.True(t, x.CanFetchMore())

	require.True(t, x.FetchMore())
	require.Eventually(t, func() bool { return x.Len() == 4 && !x.IsActive() }, time.Second, time.Millisecond)

	require.True(t, x.FetchMore())
	waitDone(t, x)
	assert.Equal(t, Done, x.State())
	assert.False(t, x.FetchMore())
	assert.Equal(t, []string{"files/xa", "files/xb", "files/xc", "files/xd"}, ids(x.Results()))
}

func TestEngine_GeneratorStoppedWhenSuperseded(t *testing.T) {
	gen := &batchGenerator{Base: handler.NewBase("files", "Files", ""), n: 100}
	e := newEngine(t, []handler.Extension{gen})

	x := e.StartQuery("f x")
	require.Eventually(t, func() bool { return x.Len() == 2 && !x.IsActive() }, time.Second, time.Millisecond)

	y := e.StartQuery("f y")
	waitDone(t, x)
	assert.True(t, gen.stopped.Load())
	assert.False(t, x.FetchMore())

	require.Eventually(t, func() bool { return y.Len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "files/ya", ids(y.Results())[0])
}

func TestEngine_GeneratorReplacedOnSingleWorker(t *testing.T) {
	gen := &batchGenerator{Base: handler.NewBase("files", "Files", ""), n: 100}
	e := newEngine(t, []handler.Extension{gen}, WithPool(executor.NewPool(1)))

	for i := 0; i < 20; i++ {
		x := e.StartQuery("f x")
		require.Eventually(t, func() bool { return x.Len() == 2 && !x.IsActive() }, time.Second, time.Millisecond)

		y := e.StartQuery("f y")
		require.Eventually(t, func() bool { return y.Len() == 2 }, 2*time.Second, time.Millisecond,
			"replacement query produced no batch on round %d", i)
		waitDone(t, x)
		assert.Equal(t, "files/ya", ids(y.Results())[0])
	}
}

func TestEngine_GeneratorSlotFreeBetweenPulls(t *testing.T) {
	gen := &batchGenerator{Base: handler.NewBase("files", "Files", ""), n: 100}
	e := newEngine(t, []handler.Extension{gen})

	x := e.StartQuery("f x")
	require.Eventually(t, func() bool { return x.Len() == 2 && !x.IsActive() }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, e.acquire(ctx, "files"), "idle generator must not hold the handler slot")
	e.release("files")

	require.True(t, x.FetchMore())
	require.Eventually(t, func() bool { return x.Len() == 4 && !x.IsActive() }, time.Second, time.Millisecond)
}

func TestEngine_Activate(t *testing.T) {
	ran := false
	it := &model.Item{ID: "firefox", Actions: []model.Action{
		{ID: "launch", Run: func() error { ran = true; return nil }},
		{ID: "fail", Run: func() error { return errors.New("no display") }},
	}}
	scoring, err := usage.New(usage.DefaultConfig(), nil)
	require.NoError(t, err)
	e := newEngine(t, nil, WithScoring(scoring))
	r := Result{Item: it, ExtensionID: "apps"}

	require.NoError(t, e.Activate(context.Background(), r, ""))
	assert.True(t, ran)
	assert.Equal(t, 1.0, scoring.Snapshot().Score(usage.Key{ExtensionID: "apps", ItemID: "firefox"}))

	assert.ErrorContains(t, e.Activate(context.Background(), r, "fail"), "no display")
	assert.ErrorIs(t, e.Activate(context.Background(), r, "missing"), ErrNoAction)
	assert.ErrorIs(t, e.Activate(context.Background(), Result{Item: &model.Item{}}, ""), ErrNoAction)

	total, _ := scoring.Stats()
	assert.Equal(t, 1, total, "failed actions are not recorded")
}

func TestEngine_NoHandlers(t *testing.T) {
	e := newEngine(t, nil)
	x := e.StartQuery("anything")
	waitDone(t, x)
	assert.Equal(t, Done, x.State())
	assert.Zero(t, x.Len())
}

func TestEngine_CloseCancelsCurrent(t *testing.T) {
	slow := newGlobal("slow", item("x", 1))
	slow.release = make(chan struct{})
	reg := registry.New()
	require.NoError(t, reg.Register(slow))
	e := New(reg)

	x := e.StartQuery("x")
	require.NoError(t, e.Close())
	assert.Equal(t, Cancelled, x.State())

	y := e.StartQuery("y")
	assert.Equal(t, Cancelled, y.State(), "queries after Close are cancelled immediately")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "superseded", Superseded.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, Done.Terminal())
	assert.False(t, Completing.Terminal())
}
