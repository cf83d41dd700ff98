// Package handler defines the contracts result providers implement.
//
// A handler takes part in a query through one or more roles, each a separate
// interface: TriggerHandler, GlobalHandler, FallbackHandler and GeneratorHandler.
// The engine discovers roles with type assertions.
package handler

import (
	"context"
	"iter"
	"slices"

	"github.com/igusev/launchq/internal/model"
)

// Extension is the identity every handler carries
type Extension interface {
	ID() string
	Name() string
	Description() string
}

// UsageScorer blends match scores with usage in place
type UsageScorer interface {
	ModifyMatchScores(extensionID string, items []model.RankItem)
}

// Query is a handler's view of one execution
type Query interface {
	// String is the remainder after the trigger, or the full input for global queries
	String() string
	Trigger() string
	// IsValid turns false once the query is superseded or cancelled
	IsValid() bool
	// Context is cancelled together with IsValid turning false
	Context() context.Context
	// Add appends results in order. Dropped once the query is invalid.
	Add(items ...*model.Item)
	UsageScores() UsageScorer
}

// Triggerable is the part shared by all handlers reachable through a trigger
type Triggerable interface {
	Extension
	// DefaultTrigger is used unless the user remapped it
	DefaultTrigger() string
	AllowTriggerRemap() bool
	// Synopsis is a hint shown while the remainder is still empty
	Synopsis(query string) string
}

// TriggerHandler answers queries that start with its trigger, exclusively
type TriggerHandler interface {
	Triggerable
	HandleTriggerQuery(q Query) error
}

// GlobalHandler additionally competes in untriggered queries with scored items
type GlobalHandler interface {
	TriggerHandler
	HandleGlobalQuery(q Query) ([]model.RankItem, error)
}

// FallbackHandler is consulted only when a query produced nothing
type FallbackHandler interface {
	Extension
	Fallbacks(query string) []*model.Item
}

// GeneratorHandler produces triggered results lazily, one batch per step
type GeneratorHandler interface {
	Triggerable
	Items(q Query) iter.Seq[[]*model.Item]
}

// Base implements Extension and the trigger defaults. Embed it.
type Base struct {
	id          string
	name        string
	description string
}

// NewBase creates a Base
func NewBase(id, name, description string) Base {
	return Base{id: id, name: name, description: description}
}

// ID returns the extension id
func (b Base) ID() string { return b.id }

// Name returns the display name
func (b Base) Name() string { return b.name }

// Description returns a one-line description
func (b Base) Description() string { return b.description }

// DefaultTrigger is the id followed by a space
func (b Base) DefaultTrigger() string { return b.id + " " }

// AllowTriggerRemap is true
func (b Base) AllowTriggerRemap() bool { return true }

// Synopsis is empty
func (b Base) Synopsis(string) string { return "" }

// HandleTriggerViaGlobal answers a triggered query with a global handler's ranked
// items: usage rescoring, a stable sort by score, then Add in that order.
func HandleTriggerViaGlobal(h GlobalHandler, q Query) error {
	items, err := h.HandleGlobalQuery(q)
	if err != nil {
		return err
	}
	if !q.IsValid() {
		return nil
	}

	if scorer := q.UsageScores(); scorer != nil {
		scorer.ModifyMatchScores(h.ID(), items)
	}
	SortRankItems(items)

	out := make([]*model.Item, len(items))
	for i, ri := range items {
		out[i] = ri.Item
	}
	q.Add(out...)
	return nil
}

// SortRankItems sorts by score descending, keeping the order of equal scores
func SortRankItems(items []model.RankItem) {
	slices.SortStableFunc(items, func(a, b model.RankItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}
