package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/igusev/launchq/internal/executor"
	"github.com/igusev/launchq/internal/query"
)

// postedMsg reports that the engine queued callbacks for the TUI
type postedMsg struct{}

// Bridge delivers engine events to the TUI.
// The engine posts callbacks into the loop; the model drains it inside Update,
// so observed events are only ever touched by the bubbletea goroutine.
type Bridge struct {
	loop    *executor.Loop
	pending []query.Event
}

// NewBridge creates a bridge
func NewBridge() *Bridge {
	return &Bridge{loop: executor.NewLoop(64)}
}

// EngineOptions wires an engine to deliver its events through the bridge
func (b *Bridge) EngineOptions() []query.Option {
	return []query.Option{
		query.WithPoster(b.loop),
		query.WithObserver(b.observe),
	}
}

// Close drops callbacks posted after the TUI exits
func (b *Bridge) Close() {
	b.loop.Close()
}

func (b *Bridge) observe(ev query.Event) {
	b.pending = append(b.pending, ev)
}

// wait blocks until the engine posts the next callback
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.loop.Wake()
		return postedMsg{}
	}
}

// take runs the queued callbacks and returns the events they observed
func (b *Bridge) take() []query.Event {
	b.loop.Drain()
	events := b.pending
	b.pending = nil
	return events
}
