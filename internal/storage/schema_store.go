package storage

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/prism-db/prism/internal/cluster/schema"
	prismerrors "github.com/prism-db/prism/internal/errors"
)

const defaultSchemaCacheSize = 256

// Schema.Schema and Change.OldValue/NewValue are declared any; gob needs
// every concrete type that can appear there registered up front, same
// requirement the RPC transport's codec has for the wire copies of
// these same structs.
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(int64(0))
	gob.Register(float64(0))
}

// SchemaStore persists schema.VersionedSchema rows to a SQLite FTS-free
// table (schema history is keyed and queried by (collection, version), not
// full text, so no FTS5 virtual table is needed here), fronted by an LRU
// cache for repeat Get calls against the current version of a collection.
type SchemaStore struct {
	mu    sync.Mutex
	db    *sql.DB
	cache *lru.Cache[string, schema.VersionedSchema]
}

// NewSchemaStore opens (creating if absent) a SQLite-backed schema history
// database at path, in WAL mode for concurrent multi-process reads. An
// empty path opens an in-memory database, for tests.
func NewSchemaStore(path string, cacheSize int) (*SchemaStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, prismerrors.Storage("failed to create schema storage directory", err)
		}
		if err := validateIntegrity(path); err != nil {
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, prismerrors.Storage("failed to open schema database", err)
	}

	// Single writer: WAL mode permits concurrent readers but this store
	// treats the handle as one logical writer to avoid SQLITE_BUSY under
	// contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, prismerrors.Storage("failed to set schema database pragma", err)
		}
	}

	if _, err := db.Exec(schemaHistoryDDL); err != nil {
		_ = db.Close()
		return nil, prismerrors.Storage("failed to initialize schema history table", err)
	}

	if cacheSize <= 0 {
		cacheSize = defaultSchemaCacheSize
	}
	cache, err := lru.New[string, schema.VersionedSchema](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, prismerrors.Storage("failed to allocate schema cache", err)
	}

	return &SchemaStore{db: db, cache: cache}, nil
}

const schemaHistoryDDL = `
CREATE TABLE IF NOT EXISTS schema_history (
	collection TEXT NOT NULL,
	version    INTEGER NOT NULL,
	body       BLOB NOT NULL,
	PRIMARY KEY (collection, version)
);
`

// validateIntegrity runs PRAGMA integrity_check against an existing
// database file before NewSchemaStore reopens it for real use; a file that
// fails the check is removed and recreated empty.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("schema database corrupted: %s", result)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SchemaStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Put appends versioned as a new row, keyed by (Collection, Version).
// Re-putting an existing (collection, version) pair overwrites the row,
// so callers that need append-only semantics must check Get first.
func (s *SchemaStore) Put(versioned schema.VersionedSchema) error {
	body, err := encodeSchema(versioned)
	if err != nil {
		return prismerrors.Storage("failed to encode versioned schema", err)
	}

	s.mu.Lock()
	_, err = s.db.Exec(
		`INSERT INTO schema_history (collection, version, body) VALUES (?, ?, ?)
		 ON CONFLICT(collection, version) DO UPDATE SET body = excluded.body`,
		versioned.Collection, uint64(versioned.Version), body,
	)
	s.mu.Unlock()
	if err != nil {
		return prismerrors.Storage("failed to persist versioned schema", err)
	}

	s.cache.Add(cacheKey(versioned.Collection, versioned.Version), versioned)
	return nil
}

// Get returns the stored schema for collection at version, checking the
// LRU cache before falling back to SQLite.
func (s *SchemaStore) Get(collection string, version schema.Version) (schema.VersionedSchema, bool, error) {
	key := cacheKey(collection, version)
	if cached, ok := s.cache.Get(key); ok {
		return cached, true, nil
	}

	s.mu.Lock()
	row := s.db.QueryRow(
		`SELECT body FROM schema_history WHERE collection = ? AND version = ?`,
		collection, uint64(version),
	)
	var body []byte
	err := row.Scan(&body)
	s.mu.Unlock()

	if err == sql.ErrNoRows {
		return schema.VersionedSchema{}, false, nil
	}
	if err != nil {
		return schema.VersionedSchema{}, false, prismerrors.Storage("failed to query versioned schema", err)
	}

	versioned, err := decodeSchema(body)
	if err != nil {
		return schema.VersionedSchema{}, false, prismerrors.Storage("failed to decode versioned schema", err)
	}
	s.cache.Add(key, versioned)
	return versioned, true, nil
}

// History returns every stored version for collection, oldest first.
func (s *SchemaStore) History(collection string) ([]schema.VersionedSchema, error) {
	s.mu.Lock()
	rows, err := s.db.Query(
		`SELECT body FROM schema_history WHERE collection = ? ORDER BY version ASC`,
		collection,
	)
	s.mu.Unlock()
	if err != nil {
		return nil, prismerrors.Storage("failed to query schema history", err)
	}
	defer rows.Close()

	var out []schema.VersionedSchema
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, prismerrors.Storage("failed to scan schema history row", err)
		}
		versioned, err := decodeSchema(body)
		if err != nil {
			return nil, prismerrors.Storage("failed to decode schema history row", err)
		}
		out = append(out, versioned)
	}
	return out, rows.Err()
}

func cacheKey(collection string, version schema.Version) string {
	return fmt.Sprintf("%s@%d", collection, uint64(version))
}

func encodeSchema(versioned schema.VersionedSchema) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(versioned); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSchema(body []byte) (schema.VersionedSchema, error) {
	var versioned schema.VersionedSchema
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&versioned); err != nil {
		return schema.VersionedSchema{}, err
	}
	return versioned, nil
}
