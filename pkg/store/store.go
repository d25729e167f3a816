// Package store persists collection snapshots in SQLite for offline
// browsing and trait statistics.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/katscan/pkg/collection"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no snapshot exists for a tick.
var ErrNotFound = errors.New("snapshot not found")

// Store is a SQLite snapshot store. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Snapshot describes one saved collection.
type Snapshot struct {
	Info      collection.Info
	ItemCount int
	SavedAt   time.Time
}

// TraitCount is the number of items carrying one trait value.
type TraitCount struct {
	Trait string
	Value string
	Count int
}

// Open opens or creates the database at dbPath. ":memory:" is supported.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps a shared in-memory database alive and serialises
	// writers on file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		tick TEXT PRIMARY KEY,
		info TEXT NOT NULL,
		item_count INTEGER NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		tick TEXT NOT NULL REFERENCES collections(tick) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		name TEXT,
		description TEXT,
		image TEXT,
		PRIMARY KEY (tick, position)
	);

	CREATE TABLE IF NOT EXISTS traits (
		tick TEXT NOT NULL,
		item_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (tick, item_position, position),
		FOREIGN KEY (tick, item_position) REFERENCES items(tick, position) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_traits_value ON traits(tick, name, value);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveCollection replaces the snapshot of info.Tick with items, in order.
func (s *Store) SaveCollection(ctx context.Context, info collection.Info, items []collection.Item) error {
	if info.Tick == "" {
		return fmt.Errorf("tick is required")
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSnapshot(ctx, tx, info.Tick); err != nil {
		return fmt.Errorf("delete previous snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (tick, info, item_count, saved_at) VALUES (?, ?, ?, ?)`,
		info.Tick, string(infoJSON), len(items), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	itemStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (tick, position, id, name, description, image) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer itemStmt.Close()

	traitStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO traits (tick, item_position, position, name, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trait insert: %w", err)
	}
	defer traitStmt.Close()

	for i, item := range items {
		if _, err := itemStmt.ExecContext(ctx, info.Tick, i, string(item.ID), item.Name, item.Description, item.Image); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
		for j, trait := range item.Traits {
			if _, err := traitStmt.ExecContext(ctx, info.Tick, i, j, trait.Name, trait.Value); err != nil {
				return fmt.Errorf("insert trait %s of item %s: %w", trait.Name, item.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Collection returns the snapshot header for tick.
func (s *Store) Collection(ctx context.Context, tick string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT info, item_count, saved_at FROM collections WHERE tick = ?`, tick)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Collections lists all snapshots ordered by tick.
func (s *Store) Collections(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT info, item_count, saved_at FROM collections ORDER BY tick`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		infoJSON string
		snap     Snapshot
	)
	if err := row.Scan(&infoJSON, &snap.ItemCount, &snap.SavedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(infoJSON), &snap.Info); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	return &snap, nil
}

// Items returns the saved items of tick in their original order.
func (s *Store) Items(ctx context.Context, tick string) ([]collection.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE tick = ?`, tick).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, image FROM items WHERE tick = ? ORDER BY position`, tick)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []collection.Item{}
	for rows.Next() {
		var (
			item                     collection.Item
			id                       string
			name, description, image sql.NullString
		)
		if err := rows.Scan(&id, &name, &description, &image); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.ID = collection.ItemID(id)
		item.Name = name.String
		item.Description = description.String
		item.Image = image.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	traitRows, err := s.db.QueryContext(ctx,
		`SELECT item_position, name, value FROM traits WHERE tick = ? ORDER BY item_position, position`, tick)
	if err != nil {
		return nil, fmt.Errorf("query traits: %w", err)
	}
	defer traitRows.Close()

	for traitRows.Next() {
		var (
			pos   int
			trait collection.Trait
		)
		if err := traitRows.Scan(&pos, &trait.Name, &trait.Value); err != nil {
			return nil, fmt.Errorf("scan trait: %w", err)
		}
		if pos >= 0 && pos < len(items) {
			items[pos].Traits = append(items[pos].Traits, trait)
		}
	}
	return items, traitRows.Err()
}

// TraitCounts returns how many items carry each trait value, ordered by
// trait name, then count descending, then value.
func (s *Store) TraitCounts(ctx context.Context, tick string) ([]TraitCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value, COUNT(*) AS n
		FROM traits
		WHERE tick = ?
		GROUP BY name, value
		ORDER BY name, n DESC, value`, tick)
	if err != nil {
		return nil, fmt.Errorf("query trait counts: %w", err)
	}
	defer rows.Close()

	var out []TraitCount
	for rows.Next() {
		var tc TraitCount
		if err := rows.Scan(&tc.Trait, &tc.Value, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan trait count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Delete removes the snapshot of tick.
func (s *Store) Delete(ctx context.Context, tick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSnapshot(ctx, tx, tick); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return tx.Commit()
}

func deleteSnapshot(ctx context.Context, tx *sql.Tx, tick string) error {
	for _, table := range []string{"traits", "items", "collections"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE tick = ?", tick); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}
