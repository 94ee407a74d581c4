// Package state persists the configured portal list between runs. The
// list keeps insertion order so the tree shows portals in the order
// the user added them.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Portal is one saved portal entry.
type Portal struct {
	URL   string
	AppID string
}

// Store is a sqlite-backed portal list.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS portals (
			position INTEGER NOT NULL,
			url      TEXT NOT NULL PRIMARY KEY,
			app_id   TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the saved portals in insertion order.
func (s *Store) Load(ctx context.Context) ([]Portal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, app_id FROM portals ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load portals: %w", err)
	}
	defer rows.Close()

	var out []Portal
	for rows.Next() {
		var p Portal
		if err := rows.Scan(&p.URL, &p.AppID); err != nil {
			return nil, fmt.Errorf("scan portal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Add appends a portal to the list. Adding an existing URL is an
// error.
func (s *Store) Add(ctx context.Context, p Portal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portals (position, url, app_id)
		VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM portals), ?, ?)`,
		p.URL, p.AppID)
	if err != nil {
		return fmt.Errorf("save portal %s: %w", p.URL, err)
	}
	return nil
}

// Remove drops a portal by URL. Removing an unknown URL is a no-op.
func (s *Store) Remove(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM portals WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("remove portal %s: %w", url, err)
	}
	return nil
}
