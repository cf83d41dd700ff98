package usage

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// logData is the serializable representation of the activation log
type logData struct {
	Version     int
	Activations []Activation
}

const logVersion = 1

// FileLog keeps the activation log in memory and persists it to a gob file.
// Appends are buffered until Save.
type FileLog struct {
	mu       sync.RWMutex
	entries  []Activation
	filePath string
	dirty    bool // Indicates if there are unsaved changes

	loadOnce sync.Once
	loadErr  error
}

// NewFileLog creates a FileLog backed by filePath. Nothing is read until the
// first access or LoadAsync.
func NewFileLog(filePath string) *FileLog {
	return &FileLog{filePath: filePath}
}

// LoadAsync loads the log from disk in the background.
// Returns a channel that will receive an error (or nil on success).
func (l *FileLog) LoadAsync() <-chan error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		errCh <- l.ensureLoaded()
	}()

	return errCh
}

func (l *FileLog) ensureLoaded() error {
	l.loadOnce.Do(func() {
		l.loadErr = l.load()
	})
	return l.loadErr
}

func (l *FileLog) load() error {
	// Clean path to prevent directory traversal
	cleanPath := filepath.Clean(l.filePath)
	file, err := os.Open(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			// First run - no usage file yet
			return nil
		}
		return fmt.Errorf("failed to open usage file: %w", err)
	}
	defer file.Close() //nolint:errcheck // Deferred close on read-only file

	var data logData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode usage log: %w", err)
	}
	if data.Version > logVersion {
		return fmt.Errorf("usage log version %d is newer than supported %d", data.Version, logVersion)
	}

	l.mu.Lock()
	// Entries appended before the load completed are newer than anything on disk
	l.entries = append(data.Activations, l.entries...)
	l.mu.Unlock()
	return nil
}

// Append adds an activation
func (l *FileLog) Append(_ context.Context, a Activation) error {
	if err := l.ensureLoaded(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, a)
	l.dirty = true
	return nil
}

// Activations returns a copy of all activations, oldest first
func (l *FileLog) Activations(ctx context.Context) ([]Activation, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Activation, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Prune removes activations older than before
func (l *FileLog) Prune(_ context.Context, before time.Time) (int, error) {
	if err := l.ensureLoaded(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, a := range l.entries {
		if a.Time.Before(before) {
			continue
		}
		kept = append(kept, a)
	}
	removed := len(l.entries) - len(kept)
	l.entries = kept
	if removed > 0 {
		l.dirty = true
	}
	return removed, nil
}

// Clear removes all activations
func (l *FileLog) Clear(_ context.Context) error {
	if err := l.ensureLoaded(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.dirty = true
	return nil
}

// Save writes the log to disk if it changed, using a temp file and rename
func (l *FileLog) Save() error {
	l.mu.RLock()
	if !l.dirty {
		l.mu.RUnlock()
		return nil
	}
	data := logData{Version: logVersion, Activations: make([]Activation, len(l.entries))}
	copy(data.Activations, l.entries)
	l.mu.RUnlock()

	cleanPath := filepath.Clean(l.filePath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0750); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}

	tempPath := cleanPath + ".tmp"
	// #nosec G304 -- cleaned path with a fixed suffix, used for atomic replace
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		_ = file.Close()        //nolint:errcheck // Cleanup on error
		_ = os.Remove(tempPath) //nolint:errcheck // Cleanup temp file
		return fmt.Errorf("failed to encode usage log: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // Cleanup temp file
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, cleanPath); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // Cleanup temp file
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	l.mu.Lock()
	l.dirty = false
	l.mu.Unlock()
	return nil
}

// Close flushes pending changes
func (l *FileLog) Close() error {
	return l.Save()
}

// MemoryLog is a non-persistent Log
type MemoryLog struct {
	mu      sync.Mutex
	entries []Activation
}

// NewMemoryLog creates an empty in-memory log
func NewMemoryLog(entries ...Activation) *MemoryLog {
	return &MemoryLog{entries: entries}
}

// Append adds an activation
func (l *MemoryLog) Append(_ context.Context, a Activation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, a)
	return nil
}

// Activations returns a copy of all activations, oldest first
func (l *MemoryLog) Activations(_ context.Context) ([]Activation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Activation, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Clear removes all activations
func (l *MemoryLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}
