package registry

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/model"
)

type triggerOnly struct {
	handler.Base
	trigger string
	fixed   bool
}

func (h *triggerOnly) DefaultTrigger() string {
	if h.trigger != "" {
		return h.trigger
	}
	return h.Base.DefaultTrigger()
}
func (h *triggerOnly) AllowTriggerRemap() bool                { return !h.fixed }
func (h *triggerOnly) HandleTriggerQuery(handler.Query) error { return nil }

type global struct{ handler.Base }

func (h *global) HandleTriggerQuery(handler.Query) error { return nil }
func (h *global) HandleGlobalQuery(handler.Query) ([]model.RankItem, error) {
	return nil, nil
}

type fallback struct{ handler.Base }

func (h *fallback) Fallbacks(string) []*model.Item { return nil }

type generator struct{ handler.Base }

func (h *generator) Items(handler.Query) iter.Seq[[]*model.Item] {
	return func(func([]*model.Item) bool) {}
}

func newTrigger(id, trigger string) *triggerOnly {
	return &triggerOnly{Base: handler.NewBase(id, id, ""), trigger: trigger}
}

func TestRolesOf(t *testing.T) {
	tests := []struct {
		ext  handler.Extension
		want string
	}{
		{newTrigger("ssh", "ssh "), "trigger"},
		{&global{handler.NewBase("apps", "", "")}, "trigger,global"},
		{&fallback{handler.NewBase("web", "", "")}, "fallback"},
		{&generator{handler.NewBase("files", "", "")}, "generator"},
	}
	for _, tt := range tests {
		if got := RolesOf(tt.ext).String(); got != tt.want {
			t.Errorf("RolesOf(%s) = %q, want %q", tt.ext.ID(), got, tt.want)
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")))
	require.NoError(t, r.Register(&global{handler.NewBase("apps", "", "")}))
	require.NoError(t, r.Register(&fallback{handler.NewBase("web", "", "")}))

	assert.ErrorIs(t, r.Register(newTrigger("ssh", "other ")), ErrDuplicateExtension)
	assert.ErrorIs(t, r.Register(newTrigger("sshx", "ssh ")), ErrTriggerConflict)
	assert.ErrorIs(t, r.Register(newTrigger("blank", " ")), ErrInvalidTrigger)

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "ssh ", entries[0].Trigger)
	assert.Equal(t, "apps ", entries[1].Trigger)
	assert.Empty(t, entries[2].Trigger, "fallback-only extensions have no trigger")

	table := r.Table()
	assert.Len(t, table.Global(), 1)
	assert.Len(t, table.Fallbacks(), 1)
	assert.ElementsMatch(t, []string{"ssh ", "apps "}, table.Triggers())
}

func TestTable_MatchLongestPrefix(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")))
	require.NoError(t, r.Register(newTrigger("sshfs", "ssh fs ")))
	require.NoError(t, r.Register(&global{handler.NewBase("apps", "", "")}))

	tests := []struct {
		input     string
		wantID    string
		remainder string
		ok        bool
	}{
		{"ssh myhost", "ssh", "myhost", true},
		{"ssh fs share", "sshfs", "share", true},
		{"ssh ", "ssh", "", true},
		{"ssh", "", "", false},
		{"firefox", "", "", false},
		{"apps fire", "apps", "fire", true},
	}

	table := r.Table()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h, _, rem, ok := table.Match(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantID, h.ID())
			assert.Equal(t, tt.remainder, rem)
		})
	}
}

func TestTable_MatchIsAnchored(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")))
	require.NoError(t, r.Register(newTrigger("indent", " >")))

	table := r.Table()
	tests := []struct {
		input  string
		wantID string
		ok     bool
	}{
		{"ssh host", "ssh", true},
		{"SSH host", "", false},
		{"x ssh host", "", false},
		{" ssh host", "", false},
		{" >ls", "indent", true},
		{">ls", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h, prefix, rem, ok := table.Match(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantID, h.ID())
			assert.Equal(t, tt.input, prefix+rem)
		})
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&global{handler.NewBase("apps", "", "")}))
	before := r.Table()

	require.NoError(t, r.SetEnabled("apps", false))
	assert.Empty(t, r.Table().Global())
	_, _, _, ok := r.Table().Match("apps x")
	assert.False(t, ok)
	assert.Len(t, before.Global(), 1, "published tables are immutable")

	assert.ErrorIs(t, r.SetEnabled("nope", true), ErrUnknownExtension)
}

func TestRegistry_SetTrigger(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")))
	require.NoError(t, r.Register(newTrigger("web", "? ")))
	fixed := newTrigger("calc", "= ")
	fixed.fixed = true
	require.NoError(t, r.Register(fixed))
	require.NoError(t, r.Register(&fallback{handler.NewBase("fb", "", "")}))

	require.NoError(t, r.SetTrigger("ssh", "s "))
	h, _, rem, ok := r.Table().Match("s host")
	require.True(t, ok)
	assert.Equal(t, "ssh", h.ID())
	assert.Equal(t, "host", rem)

	assert.ErrorIs(t, r.SetTrigger("ssh", "? "), ErrTriggerConflict)
	assert.ErrorIs(t, r.SetTrigger("calc", "c "), ErrTriggerRemapNotAllowed)
	assert.NoError(t, r.SetTrigger("calc", "= "), "setting the current trigger is a no-op")
	assert.ErrorIs(t, r.SetTrigger("fb", "f "), ErrInvalidTrigger)
	assert.ErrorIs(t, r.SetTrigger("missing", "m "), ErrUnknownExtension)

	require.NoError(t, r.SetTrigger("ssh", ""))
	e, ok := r.Get("ssh")
	require.True(t, ok)
	assert.Equal(t, "ssh ", e.Trigger)
}

func TestRegistry_Deregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")))
	require.NoError(t, r.Deregister("ssh"))

	_, _, _, ok := r.Table().Match("ssh host")
	assert.False(t, ok)
	assert.ErrorIs(t, r.Deregister("ssh"), ErrUnknownExtension)
	require.NoError(t, r.Register(newTrigger("ssh", "ssh ")), "id is free again")
}
