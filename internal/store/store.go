package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// Store is the embedded, single-file SQLite-backed storage backend.
// A single *sql.DB with MaxOpenConns(1) is used, matching the teacher's
// LocalStore convention: SQLite's writer serialization makes a
// connection pool counterproductive, and a single connection keeps
// PRAGMA settings (journal_mode, busy_timeout) effective for every query.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	ftsOK  bool
}

// Open creates or opens the SQLite file at path, applies PRAGMAs, and
// runs schema creation plus migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("setting journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL`); err != nil {
		return nil, fmt.Errorf("setting synchronous: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("setting foreign_keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("opened store at %s", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	if err := createSchema(s.db); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	s.ftsOK = detectFTS(s.db)
	if !s.ftsOK {
		logging.StoreError("fts5 virtual table unavailable, falling back to LIKE search")
	}
	return nil
}

// detectFTS probes whether the sqlite3 build linked in supports FTS5, the
// same defensive-probe pattern the teacher uses for its vec0 extension.
func detectFTS(db *sql.DB) bool {
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS __fts_probe USING fts5(x)`)
	if err != nil {
		return false
	}
	db.Exec(`DROP TABLE IF EXISTS __fts_probe`)
	return true
}
