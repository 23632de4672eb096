package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/mmcdole/portal/internal/domain"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// schema is the ordered list of cache migrations
var schema = []Migration{
	{
		Version:     1,
		Description: "items, remote keys, partitions",
		Up: execAll(
			`CREATE TABLE items (
				kind     TEXT    NOT NULL,
				id       INTEGER NOT NULL,
				page     INTEGER NOT NULL,
				position INTEGER NOT NULL,
				data     BLOB    NOT NULL,
				PRIMARY KEY (kind, id)
			)`,
			`CREATE INDEX idx_items_order ON items (kind, page, position)`,
			`CREATE TABLE remote_keys (
				kind      TEXT    NOT NULL,
				item_id   INTEGER NOT NULL,
				page      INTEGER NOT NULL,
				prev_page INTEGER NOT NULL DEFAULT 0,
				next_page INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (kind, item_id)
			)`,
			`CREATE TABLE partitions (
				kind       TEXT    PRIMARY KEY,
				filter_key TEXT    NOT NULL,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
		),
	},
	{
		Version:     2,
		Description: "detail cache",
		Up: execAll(
			`CREATE TABLE details (
				kind TEXT    NOT NULL,
				id   INTEGER NOT NULL,
				data BLOB    NOT NULL,
				PRIMARY KEY (kind, id)
			)`,
		),
	},
}

func execAll(stmts ...string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// SQLiteBackend implements domain.Store backed by SQLite via modernc.org/sqlite.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // Serialize migrations
}

// NewSQLiteBackend opens (or creates) a SQLite database at path, applies
// pragmas and runs pending migrations. Use ":memory:" for an ephemeral cache.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &SQLiteBackend{db: db, path: path}
	if err := s.Migrate(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location
func (s *SQLiteBackend) Path() string {
	return s.path
}

// Tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *SQLiteBackend) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Migrate runs pending migrations. Applied versions are tracked in the
// _migrations table and skipped.
func (s *SQLiteBackend) Migrate(ctx context.Context, migrations []Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER  PRIMARY KEY,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		err = s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (version, description) VALUES (?, ?)",
				m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// === Partitions ===

func (s *SQLiteBackend) Partition(ctx context.Context, kind domain.Kind) (domain.Partition, bool, error) {
	var filterKey string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT filter_key, updated_at FROM partitions WHERE kind = ?", string(kind),
	).Scan(&filterKey, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Partition{}, false, nil
	}
	if err != nil {
		return domain.Partition{}, false, fmt.Errorf("read partition %s: %w", kind, err)
	}

	p := domain.Partition{Kind: kind, FilterKey: filterKey}
	if updated > 0 {
		p.UpdatedAt = time.Unix(0, updated)
	}
	return p, true, nil
}

func upsertPartition(ctx context.Context, tx *sql.Tx, kind domain.Kind, filterKey string, updatedAt time.Time) error {
	var updated int64
	if !updatedAt.IsZero() {
		updated = updatedAt.UnixNano()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO partitions (kind, filter_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (kind) DO UPDATE SET filter_key = excluded.filter_key, updated_at = excluded.updated_at`,
		string(kind), filterKey, updated,
	)
	return err
}

// === Items and cursors ===

func (s *SQLiteBackend) Records(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, page, position, data FROM items WHERE kind = ? ORDER BY page, position", string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("read items %s: %w", kind, err)
	}
	defer rows.Close()

	records := []domain.Record{}
	for rows.Next() {
		var r domain.Record
		var data []byte
		if err := rows.Scan(&r.ID, &r.Page, &r.Position, &data); err != nil {
			return nil, fmt.Errorf("scan item %s: %w", kind, err)
		}
		r.Data = data
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteBackend) RemoteKey(ctx context.Context, kind domain.Kind, itemID int) (domain.RemoteKey, bool, error) {
	key := domain.RemoteKey{ItemID: itemID}
	err := s.db.QueryRowContext(ctx,
		"SELECT page, prev_page, next_page FROM remote_keys WHERE kind = ? AND item_id = ?",
		string(kind), itemID,
	).Scan(&key.Page, &key.PrevPage, &key.NextPage)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RemoteKey{}, false, nil
	}
	if err != nil {
		return domain.RemoteKey{}, false, fmt.Errorf("read remote key %s/%d: %w", kind, itemID, err)
	}
	return key, true, nil
}

// ApplyPage writes the page in one SQL transaction
func (s *SQLiteBackend) ApplyPage(ctx context.Context, kind domain.Kind, w domain.PageWrite) error {
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if w.Reset {
			if err := deleteKind(ctx, tx, kind); err != nil {
				return err
			}
		}

		for _, r := range w.Records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO items (kind, id, page, position, data) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (kind, id) DO UPDATE SET page = excluded.page, position = excluded.position, data = excluded.data`,
				string(kind), r.ID, r.Page, r.Position, []byte(r.Data),
			)
			if err != nil {
				return err
			}
		}

		for _, k := range w.Keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO remote_keys (kind, item_id, page, prev_page, next_page) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (kind, item_id) DO UPDATE SET page = excluded.page, prev_page = excluded.prev_page, next_page = excluded.next_page`,
				string(kind), k.ItemID, k.Page, k.PrevPage, k.NextPage,
			)
			if err != nil {
				return err
			}
		}

		return upsertPartition(ctx, tx, kind, w.FilterKey, w.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("apply page %s: %w", kind, err)
	}
	return nil
}

func (s *SQLiteBackend) Reset(ctx context.Context, kind domain.Kind, filterKey string) error {
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if err := deleteKind(ctx, tx, kind); err != nil {
			return err
		}
		return upsertPartition(ctx, tx, kind, filterKey, time.Time{})
	})
	if err != nil {
		return fmt.Errorf("reset %s: %w", kind, err)
	}
	return nil
}

func deleteKind(ctx context.Context, tx *sql.Tx, kind domain.Kind) error {
	for _, stmt := range []string{
		"DELETE FROM items WHERE kind = ?",
		"DELETE FROM remote_keys WHERE kind = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, string(kind)); err != nil {
			return err
		}
	}
	return nil
}

// === Detail cache ===

func (s *SQLiteBackend) Detail(ctx context.Context, kind domain.Kind, id int) (json.RawMessage, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM details WHERE kind = ? AND id = ?", string(kind), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read detail %s/%d: %w", kind, id, err)
	}
	return data, true, nil
}

func (s *SQLiteBackend) PutDetails(ctx context.Context, kind domain.Kind, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO details (kind, id, data) VALUES (?, ?, ?)
				ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data`,
				string(kind), r.ID, []byte(r.Data),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put details %s: %w", kind, err)
	}
	return nil
}

// === Invalidation ===

func (s *SQLiteBackend) Clear(ctx context.Context) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"items", "remote_keys", "partitions", "details"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ domain.Store = (*SQLiteBackend)(nil)
