// Package registry owns the set of loaded extensions and their triggers.
//
// Mutations rebuild an immutable Table; the engine reads the current Table once
// per query so handlers never change mid-query.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/igusev/launchq/internal/handler"
)

var (
	// ErrDuplicateExtension is returned when an id is registered twice
	ErrDuplicateExtension = errors.New("extension already registered")
	// ErrUnknownExtension is returned for ids that are not registered
	ErrUnknownExtension = errors.New("unknown extension")
	// ErrTriggerConflict is returned when two extensions would share a trigger
	ErrTriggerConflict = errors.New("trigger already in use")
	// ErrTriggerRemapNotAllowed is returned when remapping a fixed trigger
	ErrTriggerRemapNotAllowed = errors.New("extension does not allow trigger remapping")
	// ErrInvalidTrigger is returned for blank triggers
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// Roles is the set of capabilities an extension implements
type Roles uint8

// Role flags
const (
	RoleTrigger Roles = 1 << iota
	RoleGlobal
	RoleFallback
	RoleGenerator
)

// Has reports whether all roles in o are present
func (r Roles) Has(o Roles) bool { return r&o == o }

// String lists the roles, e.g. "trigger,global"
func (r Roles) String() string {
	var parts []string
	for _, role := range []struct {
		flag Roles
		name string
	}{
		{RoleTrigger, "trigger"},
		{RoleGlobal, "global"},
		{RoleFallback, "fallback"},
		{RoleGenerator, "generator"},
	} {
		if r.Has(role.flag) {
			parts = append(parts, role.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// RolesOf inspects which contracts ext satisfies
func RolesOf(ext handler.Extension) Roles {
	var r Roles
	if _, ok := ext.(handler.TriggerHandler); ok {
		r |= RoleTrigger
	}
	if _, ok := ext.(handler.GlobalHandler); ok {
		r |= RoleGlobal
	}
	if _, ok := ext.(handler.FallbackHandler); ok {
		r |= RoleFallback
	}
	if _, ok := ext.(handler.GeneratorHandler); ok {
		r |= RoleGenerator
	}
	return r
}

// triggerable returns ext as a Triggerable when it can answer triggered queries
func triggerable(ext handler.Extension) (handler.Triggerable, bool) {
	switch t := ext.(type) {
	case handler.TriggerHandler:
		return t, true
	case handler.GeneratorHandler:
		return t, true
	}
	return nil, false
}

// Entry describes one registered extension
type Entry struct {
	Extension handler.Extension
	Roles     Roles
	Trigger   string // Effective trigger, empty when not triggerable
	Enabled   bool
}

// Registry is the explicitly owned extension registry
type Registry struct {
	mu      sync.Mutex
	entries []*Entry // Registration order
	byID    map[string]*Entry
	table   atomic.Pointer[Table]
}

// New creates an empty registry
func New() *Registry {
	r := &Registry{byID: make(map[string]*Entry)}
	r.table.Store(buildTable(nil))
	return r
}

// Register adds an enabled extension under its default trigger
func (r *Registry) Register(ext handler.Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ext.ID()
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, id)
	}

	e := &Entry{Extension: ext, Roles: RolesOf(ext), Enabled: true}
	if t, ok := triggerable(ext); ok {
		trigger := t.DefaultTrigger()
		if strings.TrimSpace(trigger) == "" {
			return fmt.Errorf("%w: %s has a blank default trigger", ErrInvalidTrigger, id)
		}
		if owner := r.triggerOwner(trigger, ""); owner != "" {
			return fmt.Errorf("%w: %q of %s is used by %s", ErrTriggerConflict, trigger, id, owner)
		}
		e.Trigger = trigger
	}

	r.entries = append(r.entries, e)
	r.byID[id] = e
	r.publish()
	return nil
}

// Deregister removes an extension
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, id)
	}
	delete(r.byID, id)
	r.entries = slices.DeleteFunc(r.entries, func(e *Entry) bool { return e.Extension.ID() == id })
	r.publish()
	return nil
}

// SetEnabled enables or disables an extension
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, id)
	}
	e.Enabled = enabled
	r.publish()
	return nil
}

// SetTrigger remaps the trigger of an extension. An empty trigger restores the default.
func (r *Registry) SetTrigger(id, trigger string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, id)
	}
	t, ok := triggerable(e.Extension)
	if !ok {
		return fmt.Errorf("%w: %s has no trigger", ErrInvalidTrigger, id)
	}
	if trigger == "" {
		trigger = t.DefaultTrigger()
	}
	if trigger == e.Trigger {
		return nil
	}
	if !t.AllowTriggerRemap() {
		return fmt.Errorf("%w: %s", ErrTriggerRemapNotAllowed, id)
	}
	if strings.TrimSpace(trigger) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}
	if owner := r.triggerOwner(trigger, id); owner != "" {
		return fmt.Errorf("%w: %q is used by %s", ErrTriggerConflict, trigger, owner)
	}

	e.Trigger = trigger
	r.publish()
	return nil
}

// Get returns a copy of the entry for id
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries in registration order
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Table returns the current dispatch table
func (r *Registry) Table() *Table {
	return r.table.Load()
}

// triggerOwner returns the id of another extension using trigger. Must hold r.mu.
func (r *Registry) triggerOwner(trigger, except string) string {
	for _, e := range r.entries {
		if e.Trigger == trigger && e.Extension.ID() != except {
			return e.Extension.ID()
		}
	}
	return ""
}

// publish must be called with r.mu held
func (r *Registry) publish() {
	snapshot := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		snapshot[i] = *e
	}
	r.table.Store(buildTable(snapshot))
}
