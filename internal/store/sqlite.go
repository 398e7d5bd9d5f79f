package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fairyhunter13/storefront/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS cart_snapshots (
	key      TEXT PRIMARY KEY,
	revision INTEGER NOT NULL,
	value    TEXT NOT NULL
)`

// SQL keeps snapshots in a SQL table keyed by namespace.
type SQL struct {
	db  *sqlx.DB
	key string
}

type snapshotRow struct {
	Revision uint64 `db:"revision"`
	Value    string `db:"value"`
}

// OpenSQLite opens (creating if needed) a sqlite database at path.
func OpenSQLite(path, key string) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewSQL(db, key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database and ensures the schema exists.
func NewSQL(db *sqlx.DB, key string) (*SQL, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQL{db: db, key: key}, nil
}

// Close releases the database.
func (s *SQL) Close() error { return s.db.Close() }

// Load selects the snapshot row of the namespace.
func (s *SQL) Load(ctx context.Context) (model.CartSnapshot, bool, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `SELECT revision, value FROM cart_snapshots WHERE key = ?`, s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CartSnapshot{}, false, nil
	}
	if err != nil {
		return model.CartSnapshot{}, false, fmt.Errorf("select snapshot: %w", err)
	}
	var snap model.CartSnapshot
	if err := json.Unmarshal([]byte(row.Value), &snap); err != nil {
		return model.CartSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Revision = row.Revision
	return snap, true, nil
}

// Save upserts snap. The row only moves to a higher revision.
func (s *SQL) Save(ctx context.Context, snap model.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO cart_snapshots (key, revision, value) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET revision = excluded.revision, value = excluded.value
		WHERE excluded.revision > cart_snapshots.revision`, s.key, snap.Revision, string(data))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
