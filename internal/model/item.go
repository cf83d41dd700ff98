// Package model defines the result items handlers produce and the engine ranks
package model

import "strings"

// Action is one activatable operation of an Item
type Action struct {
	ID   string       // Stable identifier (e.g., "open", "copy")
	Text string       // Display text (e.g., "Open in browser")
	Run  func() error // Side-effecting operation, executed on activation
	// HideOnTrigger asks the frontend to hide its window after Run
	HideOnTrigger bool
}

// Item is a displayable result candidate.
// Items are treated as immutable once returned by a handler; the same pointer
// may be held by an index, several queries and the frontend at once.
type Item struct {
	ID              string   // Unique per extension
	Text            string   // Primary label (e.g., "Firefox")
	Subtext         string   // Secondary description (e.g., "Web Browser")
	IconURLs        []string // Icon lookup chain, resolved by the frontend
	InputActionText string   // Replaces the input line on "complete"
	Actions         []Action
}

// DisplayString returns "Text - Subtext", or just Text when there is no subtext
func (i *Item) DisplayString() string {
	if i.Subtext == "" {
		return i.Text
	}
	return i.Text + " - " + i.Subtext
}

// CompletionString returns the text the frontend puts into the input line on completion.
// Falls back to Text when the item has no explicit input action text.
func (i *Item) CompletionString() string {
	if i.InputActionText != "" {
		return i.InputActionText
	}
	return i.Text
}

// Action returns the action with the given id
func (i *Item) Action(id string) (Action, bool) {
	for _, a := range i.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// IndexItem pairs an item with one lookup string used purely for matching.
// An item may be indexed under several lookup strings.
type IndexItem struct {
	Item   *Item
	String string
}

// RankItem pairs an item with its score. Match scores live in [0,1];
// usage re-scoring may lift them above 1.
type RankItem struct {
	Item  *Item
	Score float64
}

// NewIndexItems creates one IndexItem per non-empty lookup string of item
func NewIndexItems(item *Item, lookups ...string) []IndexItem {
	out := make([]IndexItem, 0, len(lookups))
	for _, s := range lookups {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, IndexItem{Item: item, String: s})
	}
	return out
}
