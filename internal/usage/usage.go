// Package usage turns the activation history into a decayed usage score per item
// and blends it with structural match scores
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/igusev/launchq/internal/model"
)

const (
	// MinDecay makes any newer activation outweigh all older ones (most recently used)
	MinDecay = 0.5
	// MaxDecay degenerates to plain frequency counting (most frequently used)
	MaxDecay = 1.0

	// emptyMatchUsageWeight orders empty matches by usage while keeping them below real matches
	emptyMatchUsageWeight = 0.01
)

// ErrInvalidDecay is returned for a decay factor outside [MinDecay, MaxDecay]
var ErrInvalidDecay = errors.New("usage decay out of range")

// Key identifies an item across extensions; item ids are only unique per extension
type Key struct {
	ExtensionID string
	ItemID      string
}

// Activation is one entry of the usage log
type Activation struct {
	ExtensionID string
	ItemID      string
	Time        time.Time
}

// Key returns the activation's item key
func (a Activation) Key() Key {
	return Key{ExtensionID: a.ExtensionID, ItemID: a.ItemID}
}

// Log is an append-only activation log, returned oldest first
type Log interface {
	Append(ctx context.Context, a Activation) error
	Activations(ctx context.Context) ([]Activation, error)
}

// Pruner is implemented by logs that can drop old entries
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Clearer is implemented by logs that can be wiped
type Clearer interface {
	Clear(ctx context.Context) error
}

// Config controls scoring
type Config struct {
	Decay                  float64
	PrioritizePerfectMatch bool
	// MaxAge drops activations older than this on Load. Zero keeps everything.
	MaxAge time.Duration
}

// DefaultConfig returns the default scoring configuration
func DefaultConfig() Config {
	return Config{
		Decay:                  0.9,
		PrioritizePerfectMatch: true,
		MaxAge:                 100 * 24 * time.Hour,
	}
}

// Validate rejects out-of-range decay factors
func (c Config) Validate() error {
	if math.IsNaN(c.Decay) || c.Decay < MinDecay || c.Decay > MaxDecay {
		return fmt.Errorf("%w: %v not within [%v, %v]", ErrInvalidDecay, c.Decay, MinDecay, MaxDecay)
	}
	return nil
}

// Snapshot is an immutable view of usage scores, shared read-only by all handlers
type Snapshot struct {
	scores     map[Key]float64 // Normalized into [0,1]
	prioritize bool
}

// Compute replays activations (oldest first) into a snapshot.
// The most recent activation has recency rank 0 and weight 1; every activation
// of any item after it multiplies its weight by decay.
func Compute(activations []Activation, decay float64, prioritizePerfectMatch bool) *Snapshot {
	raw := make(map[Key]float64)
	weight := 1.0
	for i := len(activations) - 1; i >= 0; i-- {
		raw[activations[i].Key()] += weight
		weight *= decay
	}

	maxScore := 0.0
	for _, s := range raw {
		maxScore = math.Max(maxScore, s)
	}
	scores := make(map[Key]float64, len(raw))
	for k, s := range raw {
		if maxScore > 0 {
			scores[k] = s / maxScore
		}
	}

	return &Snapshot{scores: scores, prioritize: prioritizePerfectMatch}
}

// Score returns the normalized usage score of an item in [0,1]
func (s *Snapshot) Score(key Key) float64 {
	if s == nil {
		return 0
	}
	return s.scores[key]
}

// Len returns the number of items with usage
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.scores)
}

// ModifiedMatchScore blends a match score with the item's usage.
// Usage acts as a multiplier (match * (1 + usage)) so match quality stays dominant.
// With perfect-match priority a match score of 1 is lifted above every inexact match.
func (s *Snapshot) ModifiedMatchScore(key Key, matchScore float64) float64 {
	u := s.Score(key)
	if matchScore <= 0 {
		return u * emptyMatchUsageWeight
	}

	score := matchScore * (1 + u)
	if s != nil && s.prioritize && matchScore >= 1 {
		// Inexact matches top out below 2
		score += 1
	}
	return score
}

// ModifyMatchScores rescores items of one extension in place.
// Not synchronized: callers own the slice.
func (s *Snapshot) ModifyMatchScores(extensionID string, items []model.RankItem) {
	for i := range items {
		key := Key{ExtensionID: extensionID, ItemID: items[i].Item.ID}
		items[i].Score = s.ModifiedMatchScore(key, items[i].Score)
	}
}

// Scoring owns the activation log and publishes snapshots.
// Writers serialize on a mutex; readers load the current snapshot without locking.
type Scoring struct {
	mu          sync.Mutex
	cfg         Config
	log         Log
	activations []Activation
	current     atomic.Pointer[Snapshot]
}

// New creates a Scoring over log. Call Load to replay existing history.
func New(cfg Config, log Log) (*Scoring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NewMemoryLog()
	}
	s := &Scoring{cfg: cfg, log: log}
	s.current.Store(Compute(nil, cfg.Decay, cfg.PrioritizePerfectMatch))
	return s, nil
}

// Load replays the log into a fresh snapshot, dropping entries older than MaxAge
func (s *Scoring) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxAge > 0 {
		if p, ok := s.log.(Pruner); ok {
			if _, err := p.Prune(ctx, time.Now().Add(-s.cfg.MaxAge)); err != nil {
				return fmt.Errorf("failed to prune usage log: %w", err)
			}
		}
	}

	acts, err := s.log.Activations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage log: %w", err)
	}
	s.activations = filterAge(acts, s.cfg.MaxAge, time.Now())
	s.publish()
	return nil
}

// Record appends an activation and publishes the updated snapshot
func (s *Scoring) Record(ctx context.Context, extensionID, itemID string) error {
	a := Activation{ExtensionID: extensionID, ItemID: itemID, Time: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Append(ctx, a); err != nil {
		return fmt.Errorf("failed to record activation: %w", err)
	}
	s.activations = append(s.activations, a)
	s.publish()
	return nil
}

// SetConfig changes decay or tie-break policy and recomputes the snapshot
func (s *Scoring) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.publish()
	return nil
}

// Config returns the active configuration
func (s *Scoring) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Clear removes all history, including the persistent log when supported
func (s *Scoring) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.log.(Clearer); ok {
		if err := c.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear usage log: %w", err)
		}
	}
	s.activations = nil
	s.publish()
	return nil
}

// Snapshot returns the current immutable snapshot
func (s *Scoring) Snapshot() *Snapshot {
	return s.current.Load()
}

// Stats returns statistics about the usage history
func (s *Scoring) Stats() (totalActivations int, uniqueItems int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unique := make(map[Key]struct{})
	for _, a := range s.activations {
		unique[a.Key()] = struct{}{}
	}
	return len(s.activations), len(unique)
}

// publish must be called with s.mu held
func (s *Scoring) publish() {
	s.current.Store(Compute(s.activations, s.cfg.Decay, s.cfg.PrioritizePerfectMatch))
}

func filterAge(acts []Activation, maxAge time.Duration, now time.Time) []Activation {
	if maxAge <= 0 {
		return acts
	}
	cutoff := now.Add(-maxAge)
	out := acts[:0:0]
	for _, a := range acts {
		if a.Time.Before(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out
}
