// Package stubcache persists compiled stub chunks in SQLite so a process
// can skip stub generation for signatures it has already compiled.
//
// Chunks are stored in their CBOR wire form and keyed by a hash of the
// interface, the method signature, the parameter classification and the
// bytecode version, so a change to any of them misses the cache.
package stubcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/dynstub/pkg/bytecode"
	"github.com/chazu/dynstub/pkg/shape"
)

var log = commonlog.GetLogger("dynstub.stubcache")

// ErrNotFound indicates no chunk is cached under the key.
var ErrNotFound = errors.New("stub not cached")

// Store is a SQLite-backed chunk cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path. The path ":memory:"
// opens a private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening stub cache: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS stubs (
		key TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		chunk BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened stub cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Key returns the cache key of method m of the interface named iface.
func Key(iface string, m *shape.Method) string {
	var sb strings.Builder
	sb.WriteString(iface)
	sb.WriteByte('.')
	sb.WriteString(m.Signature(shape.CanonicalNamer{}))
	sb.WriteByte('|')
	for _, p := range m.Params {
		switch {
		case p.ByRef && p.ValueKind:
			sb.WriteByte('R')
		case p.ByRef:
			sb.WriteByte('r')
		case p.ValueKind:
			sb.WriteByte('V')
		default:
			sb.WriteByte('v')
		}
	}
	sb.WriteByte('|')
	for _, r := range m.Return.Results {
		if r.ValueKind {
			sb.WriteByte('V')
		} else {
			sb.WriteByte('v')
		}
	}
	sb.WriteString("|v")
	sb.WriteString(strconv.Itoa(int(bytecode.BytecodeVersion)))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the chunk cached under key. The chunk is verified but
// unresolved; callers resolve it against the method's func type.
func (s *Store) Get(key string) (*bytecode.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT chunk FROM stubs WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying stub: %w", err)
	}

	c, err := bytecode.UnmarshalChunk(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cached stub %s: %w", key, err)
	}
	return c, nil
}

// Put caches c under key, replacing any previous entry.
func (s *Store) Put(key string, c *bytecode.Chunk) error {
	data, err := bytecode.MarshalChunk(c)
	if err != nil {
		return fmt.Errorf("encoding stub %s: %w", c.Method, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO stubs (key, method, chunk, created_at) VALUES (?, ?, ?, ?)",
		key, c.Method, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving stub: %w", err)
	}
	return nil
}

// Delete removes the entry under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM stubs WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting stub: %w", err)
	}
	return nil
}

// Len returns the number of cached chunks.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM stubs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting stubs: %w", err)
	}
	return n, nil
}

// Methods returns the method names of all cached chunks, sorted.
func (s *Store) Methods() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT method FROM stubs ORDER BY method, key")
	if err != nil {
		return nil, fmt.Errorf("listing stubs: %w", err)
	}
	defer rows.Close()

	var methods []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning stub: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// Clear removes every cached chunk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM stubs"); err != nil {
		return fmt.Errorf("clearing stub cache: %w", err)
	}
	return nil
}
