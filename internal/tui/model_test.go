package tui

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/model"
	"github.com/igusev/launchq/internal/query"
	"github.com/igusev/launchq/internal/registry"
)

// fixedHandler matches its items by case-insensitive substring
type fixedHandler struct {
	handler.Base
	items []*model.Item
}

func (h *fixedHandler) DefaultTrigger() string { return "fx " }

func (h *fixedHandler) HandleTriggerQuery(q handler.Query) error {
	return handler.HandleTriggerViaGlobal(h, q)
}

func (h *fixedHandler) HandleGlobalQuery(q handler.Query) ([]model.RankItem, error) {
	needle := strings.ToLower(q.String())
	var out []model.RankItem
	for _, it := range h.items {
		if strings.Contains(strings.ToLower(it.Text), needle) {
			out = append(out, model.RankItem{Item: it, Score: 0.5})
		}
	}
	return out, nil
}

// countingGenerator yields n numbered items in batches
type countingGenerator struct {
	handler.Base
	n, batch int
}

func (g *countingGenerator) DefaultTrigger() string { return "g " }

func (g *countingGenerator) Synopsis(string) string { return "<anything>" }

func (g *countingGenerator) Items(q handler.Query) iter.Seq[[]*model.Item] {
	return func(yield func([]*model.Item) bool) {
		for start := 0; start < g.n; start += g.batch {
			var batch []*model.Item
			for i := start; i < min(start+g.batch, g.n); i++ {
				batch = append(batch, &model.Item{ID: fmt.Sprint(i), Text: fmt.Sprintf("item %d", i)})
			}
			if !yield(batch) {
				return
			}
		}
	}
}

type recorder struct {
	ran []string
}

func (r *recorder) action(id, text string, hide bool) model.Action {
	return model.Action{ID: id, Text: text, HideOnTrigger: hide, Run: func() error {
		r.ran = append(r.ran, id)
		return nil
	}}
}

func newTestModel(t *testing.T, exts ...handler.Extension) Model {
	t.Helper()
	reg := registry.New()
	for _, ext := range exts {
		if err := reg.Register(ext); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	bridge := NewBridge()
	engine := query.New(reg, bridge.EngineOptions()...)
	t.Cleanup(func() {
		bridge.Close()
		_ = engine.Close()
	})

	m := New(engine, bridge, Options{Version: "test"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return settle(t, updated.(Model))
}

func appsFixture(rec *recorder) *fixedHandler {
	return &fixedHandler{
		Base: handler.NewBase("apps", "Applications", ""),
		items: []*model.Item{
			{ID: "firefox", Text: "Firefox", Subtext: "Web Browser", InputActionText: "fx Firefox",
				Actions: []model.Action{rec.action("launch", "Launch", true), rec.action("copy", "Copy command", false)}},
			{ID: "files", Text: "Files", Subtext: "File Manager",
				Actions: []model.Action{rec.action("launch", "Launch", true)}},
		},
	}
}

// settle waits for the current execution to finish and applies its events
func settle(t *testing.T, m Model) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.exec.Wait(ctx); err != nil {
		t.Fatalf("execution did not finish: %v", err)
	}
	updated, _ := m.Update(postedMsg{})
	return updated.(Model)
}

// pump applies engine events until cond holds
func pump(t *testing.T, m Model, cond func(Model) bool) Model {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond(m) {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, %d results", len(m.results))
		}
		time.Sleep(time.Millisecond)
		updated, _ := m.Update(postedMsg{})
		m = updated.(Model)
	}
	return m
}

func typeText(m Model, text string) Model {
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return updated.(Model)
}

func press(m Model, key tea.KeyType) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: key})
	return updated.(Model), cmd
}

func resultIDs(m Model) []string {
	ids := make([]string, len(m.Results()))
	for i, r := range m.Results() {
		ids[i] = r.Item.ID
	}
	return ids
}

func TestModel_TypingStartsQuery(t *testing.T) {
	m := newTestModel(t, appsFixture(&recorder{}))

	if got := resultIDs(m); !reflect.DeepEqual(got, []string{"firefox", "files"}) {
		t.Errorf("initial results = %v", got)
	}

	m = settle(t, typeText(m, "fire"))
	if got := resultIDs(m); !reflect.DeepEqual(got, []string{"firefox"}) {
		t.Errorf("results for fire = %v, want [firefox]", got)
	}
	if m.state != query.Done {
		t.Errorf("state = %v, want done", m.state)
	}
}

func TestModel_IgnoresSupersededEvents(t *testing.T) {
	m := newTestModel(t, appsFixture(&recorder{}))
	stale := m.exec

	m = typeText(m, "fil")
	m.apply(query.Event{Execution: stale, Kind: query.EventAdded, Items: []query.Result{{Item: &model.Item{ID: "stale"}}}})
	m = settle(t, m)

	if got := resultIDs(m); !reflect.DeepEqual(got, []string{"files"}) {
		t.Errorf("results = %v, want [files]", got)
	}
}

func TestModel_TabCompletes(t *testing.T) {
	m := newTestModel(t, appsFixture(&recorder{}))

	m, _ = press(m, tea.KeyTab)
	if got := m.textInput.Value(); got != "fx Firefox" {
		t.Errorf("input after tab = %q, want %q", got, "fx Firefox")
	}
	m = settle(t, m)
	if !m.exec.Triggered() {
		t.Error("completion should start a triggered query")
	}
	if got := resultIDs(m); !reflect.DeepEqual(got, []string{"firefox"}) {
		t.Errorf("results = %v, want [firefox]", got)
	}
}

func TestModel_TabFallsBackToText(t *testing.T) {
	m := newTestModel(t, appsFixture(&recorder{}))

	m, _ = press(m, tea.KeyDown)
	m, _ = press(m, tea.KeyTab)
	if got := m.textInput.Value(); got != "Files" {
		t.Errorf("input after tab = %q, want Files", got)
	}
}

func TestModel_EnterRunsActionAndQuits(t *testing.T) {
	rec := &recorder{}
	m := newTestModel(t, appsFixture(rec))

	m, cmd := press(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("enter should return an activation command")
	}
	msg := cmd()
	activated, ok := msg.(ActivatedMsg)
	if !ok {
		t.Fatalf("cmd() = %T, want ActivatedMsg", msg)
	}
	if !activated.Hide || activated.Err != nil {
		t.Errorf("ActivatedMsg = %+v", activated)
	}

	updated, _ := m.Update(activated)
	m = updated.(Model)
	if !m.quitting {
		t.Error("hiding action should quit")
	}
	if m.Activated() == nil || m.Activated().Item.ID != "firefox" {
		t.Errorf("Activated() = %v", m.Activated())
	}
	if !reflect.DeepEqual(rec.ran, []string{"launch"}) {
		t.Errorf("ran = %v, want [launch]", rec.ran)
	}
}

func TestModel_CycleActions(t *testing.T) {
	rec := &recorder{}
	m := newTestModel(t, appsFixture(rec))

	m, _ = press(m, tea.KeyCtrlO)
	m, cmd := press(m, tea.KeyEnter)
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	if !reflect.DeepEqual(rec.ran, []string{"copy"}) {
		t.Errorf("ran = %v, want [copy]", rec.ran)
	}
	if m.quitting {
		t.Error("non-hiding action must keep the TUI open")
	}
	if m.status != "Copy command: Firefox" {
		t.Errorf("status = %q", m.status)
	}

	// Moving the cursor resets the action
	m, _ = press(m, tea.KeyDown)
	if m.actionIdx != 0 {
		t.Errorf("actionIdx = %d after moving, want 0", m.actionIdx)
	}
}

func TestModel_FetchMoreOnScroll(t *testing.T) {
	gen := &countingGenerator{Base: handler.NewBase("count", "Counter", ""), n: 12, batch: 5}
	m := newTestModel(t, gen)

	m = typeText(m, "g ")
	m = pump(t, m, func(m Model) bool { return len(m.results) == 5 })
	if !strings.Contains(m.View(), "<anything>") {
		t.Error("View should show the synopsis while the remainder is empty")
	}

	// The second row is far enough from the end; the third requests a batch
	m, _ = press(m, tea.KeyDown)
	m, _ = press(m, tea.KeyDown)
	m = pump(t, m, func(m Model) bool { return len(m.results) == 10 })

	m, _ = press(m, tea.KeyPgDown)
	m = pump(t, m, func(m Model) bool { return len(m.results) == 12 })

	// One more step finds the sequence exhausted
	m, _ = press(m, tea.KeyPgDown)
	m = pump(t, m, func(m Model) bool { return m.state == query.Done })

	if m.exec.CanFetchMore() {
		t.Error("exhausted generator should not fetch more")
	}
}

func TestModel_View(t *testing.T) {
	m := newTestModel(t, appsFixture(&recorder{}))

	view := m.View()
	for _, want := range []string{"launchq", "test", "Firefox", "Web Browser", "2 results"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if !strings.Contains(view, "↵ Launch") {
		t.Error("View() should show the selected action of multi-action items")
	}

	m, _ = press(m, tea.KeyCtrlS)
	if !strings.Contains(m.View(), "[apps 0.500]") {
		t.Error("View() should show scores after ctrl+s")
	}

	m, _ = press(m, tea.KeyEsc)
	if m.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}

func TestRenderHighlight(t *testing.T) {
	plain := lipgloss.NewStyle()
	tests := []struct {
		text  string
		token string
	}{
		{text: "Firefox", token: ""},
		{text: "Firefox", token: "FOX"},
		{text: "Привет мир", token: "МИР"},
		{text: "Files", token: "zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.token, func(t *testing.T) {
			// Unstyled rendering must reproduce the text
			if got := renderHighlight(tt.text, tt.token, plain, plain); got != tt.text {
				t.Errorf("renderHighlight(%q, %q) = %q", tt.text, tt.token, got)
			}
		})
	}
}

func TestIndexFold(t *testing.T) {
	tests := []struct {
		haystack string
		needle   string
		expected int
	}{
		{haystack: "Firefox", needle: "fox", expected: 4},
		{haystack: "Firefox", needle: "FIRE", expected: 0},
		{haystack: "Привет мир", needle: "МИР", expected: 7},
		{haystack: "abc", needle: "abcd", expected: -1},
		{haystack: "abc", needle: "", expected: -1},
	}

	for _, tt := range tests {
		if got := indexFold([]rune(tt.haystack), []rune(tt.needle)); got != tt.expected {
			t.Errorf("indexFold(%q, %q) = %d, want %d", tt.haystack, tt.needle, got, tt.expected)
		}
	}
}

func TestRenderResult_Truncates(t *testing.T) {
	styles := NewColorScheme().GetStyles()
	r := query.Result{Item: &model.Item{Text: "A very long application name", Subtext: "with an even longer description"}}

	got := renderResult(r, "", 20, false, styles, false)
	if w := lipgloss.Width(got); w > 20 {
		t.Errorf("rendered width = %d, want <= 20: %q", w, got)
	}
	if !strings.Contains(got, "…") {
		t.Errorf("expected ellipsis in %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected string
	}{
		{name: "single digit", input: 5, expected: "5"},
		{name: "hundreds", input: 123, expected: "123"},
		{name: "thousands with comma", input: 1234, expected: "1,234"},
		{name: "exactly thousand", input: 1000, expected: "1,000"},
		{name: "zero", input: 0, expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatNumber(tt.input); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatCount(t *testing.T) {
	plain := lipgloss.NewStyle()
	tests := []struct {
		n        int
		more     bool
		expected string
	}{
		{n: 0, expected: "0 results"},
		{n: 1, expected: "1 result"},
		{n: 50, more: true, expected: "50+ results"},
	}

	for _, tt := range tests {
		if got := formatCount(tt.n, tt.more, plain, plain); got != tt.expected {
			t.Errorf("formatCount(%d, %v) = %q, want %q", tt.n, tt.more, got, tt.expected)
		}
	}
}
