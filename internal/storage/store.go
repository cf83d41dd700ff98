// Package storage persists the activation log and per-extension settings in SQLite.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/storage/migrations"
	"github.com/igusev/launchq/internal/usage"
)

// DatabaseName is the file created inside the data directory
const DatabaseName = "launchq.db"

// Store is the SQLite-backed persistence for activations and scoped key/value data
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database inside dataDir and applies migrations
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// ActivationLog returns the usage log backed by this store
func (s *Store) ActivationLog() *ActivationLog {
	return &ActivationLog{store: s}
}

// Settings returns the settings namespace of an extension
func (s *Store) Settings(extensionID string) handler.Store {
	return &kvStore{store: s, namespace: "settings/" + extensionID}
}

// State returns the state namespace of an extension
func (s *Store) State(extensionID string) handler.Store {
	return &kvStore{store: s, namespace: "state/" + extensionID}
}

var _ handler.StoreProvider = (*Store)(nil)

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Activation Log ====================

// ActivationLog implements usage.Log on the activations table
type ActivationLog struct {
	store *Store
}

var (
	_ usage.Log     = (*ActivationLog)(nil)
	_ usage.Pruner  = (*ActivationLog)(nil)
	_ usage.Clearer = (*ActivationLog)(nil)
)

// Append inserts one activation
func (l *ActivationLog) Append(ctx context.Context, a usage.Activation) error {
	_, err := l.store.db.ExecContext(ctx,
		"INSERT INTO activations (extension_id, item_id, activated_at) VALUES (?, ?, ?)",
		a.ExtensionID, a.ItemID, a.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("saving activation: %w", err)
	}
	return nil
}

// Activations returns all activations in insertion order
func (l *ActivationLog) Activations(ctx context.Context) ([]usage.Activation, error) {
	rows, err := l.store.db.QueryContext(ctx,
		"SELECT extension_id, item_id, activated_at FROM activations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying activations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []usage.Activation
	for rows.Next() {
		var a usage.Activation
		var nanos int64
		if err := rows.Scan(&a.ExtensionID, &a.ItemID, &nanos); err != nil {
			return nil, fmt.Errorf("scanning activation: %w", err)
		}
		a.Time = time.Unix(0, nanos)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activations: %w", err)
	}
	return out, nil
}

// Prune deletes activations older than before
func (l *ActivationLog) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := l.store.db.ExecContext(ctx, "DELETE FROM activations WHERE activated_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning activations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned activations: %w", err)
	}
	return int(n), nil
}

// Clear deletes all activations
func (l *ActivationLog) Clear(ctx context.Context) error {
	if _, err := l.store.db.ExecContext(ctx, "DELETE FROM activations"); err != nil {
		return fmt.Errorf("clearing activations: %w", err)
	}
	return nil
}

// ==================== Key/Value ====================

// kvStore implements handler.Store for one namespace
type kvStore struct {
	store     *Store
	namespace string
}

// Get returns the value for key or handler.ErrNotFound
func (s *kvStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = ? AND key = ?", s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", handler.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s/%s: %w", s.namespace, key, err)
	}
	return value, nil
}

// Set stores value under key
func (s *kvStore) Set(ctx context.Context, key, value string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.namespace, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Delete removes key
func (s *kvStore) Delete(ctx context.Context, key string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ? AND key = ?", s.namespace, key)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Keys returns all keys of the namespace sorted
func (s *kvStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT key FROM kv WHERE namespace = ? ORDER BY key", s.namespace)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.namespace, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
