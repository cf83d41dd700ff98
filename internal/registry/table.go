package registry

import (
	"slices"

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/match"
)

type trigger struct {
	prefix  string
	matcher *match.Matcher // Left-anchored, case-sensitive
	handler handler.Triggerable
}

func anchoredTrigger(prefix string, h handler.Triggerable) trigger {
	m := match.New(prefix, match.Config{LeftAnchored: true, CaseSensitive: true})
	return trigger{prefix: prefix, matcher: m, handler: h}
}

// Table is an immutable dispatch view over the enabled extensions
type Table struct {
	triggers  []trigger // Longest first
	global    []handler.GlobalHandler
	fallbacks []handler.FallbackHandler
}

func buildTable(entries []Entry) *Table {
	t := &Table{}
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if th, ok := triggerable(e.Extension); ok && e.Trigger != "" {
			t.triggers = append(t.triggers, anchoredTrigger(e.Trigger, th))
		}
		if g, ok := e.Extension.(handler.GlobalHandler); ok {
			t.global = append(t.global, g)
		}
		if f, ok := e.Extension.(handler.FallbackHandler); ok {
			t.fallbacks = append(t.fallbacks, f)
		}
	}
	slices.SortStableFunc(t.triggers, func(a, b trigger) int {
		return len(b.prefix) - len(a.prefix)
	})
	return t
}

// Match finds the enabled trigger that is the longest prefix of input
func (t *Table) Match(input string) (h handler.Triggerable, prefix, remainder string, ok bool) {
	for _, tr := range t.triggers {
		if tr.matcher.Match(input).IsMatch() {
			return tr.handler, tr.prefix, input[len(tr.prefix):], true
		}
	}
	return nil, "", "", false
}

// Global returns the enabled global handlers in registration order
func (t *Table) Global() []handler.GlobalHandler {
	return t.global
}

// Fallbacks returns the enabled fallback handlers in registration order
func (t *Table) Fallbacks() []handler.FallbackHandler {
	return t.fallbacks
}

// Triggers returns the enabled triggers, longest first
func (t *Table) Triggers() []string {
	out := make([]string, len(t.triggers))
	for i, tr := range t.triggers {
		out[i] = tr.prefix
	}
	return out
}
