package handler

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned by Store.Get for missing keys
var ErrNotFound = errors.New("key not found")

// Store is a durable key/value namespace owned by one extension
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// StoreProvider hands out per-extension settings and state namespaces
type StoreProvider interface {
	Settings(extensionID string) Store
	State(extensionID string) Store
}

// GetOr returns the stored value or def when the key is missing or unreadable
func GetOr(ctx context.Context, s Store, key, def string) string {
	if s == nil {
		return def
	}
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// MemoryStore is a non-durable Store
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key or ErrNotFound
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete removes key
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns all keys sorted
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// MemoryStores is a StoreProvider backed by MemoryStores
type MemoryStores struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryStores creates an empty provider
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{stores: make(map[string]*MemoryStore)}
}

// Settings returns the settings namespace of an extension
func (p *MemoryStores) Settings(extensionID string) Store {
	return p.get("settings/" + extensionID)
}

// State returns the state namespace of an extension
func (p *MemoryStores) State(extensionID string) Store {
	return p.get("state/" + extensionID)
}

func (p *MemoryStores) get(ns string) *MemoryStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[ns]
	if !ok {
		s = NewMemoryStore()
		p.stores[ns] = s
	}
	return s
}
