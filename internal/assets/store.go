package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS pages (
    page TEXT PRIMARY KEY,
    output TEXT NOT NULL DEFAULT '',
    rendered_at INTEGER NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS resources (
    page TEXT NOT NULL,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    url TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    href TEXT NOT NULL,
    remote INTEGER NOT NULL DEFAULT 0,
    attrs TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (page, seq)
);`,
}

// Store persists the manifests of built pages so asset pipelines can pick
// them up after a build.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at dsn. Use
// ":memory:" for a throwaway store.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open manifest store: %w", err)
	}
	// Every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Page is one stored build result.
type Page struct {
	Page       string
	Output     string
	RenderedAt time.Time
	Manifest   *Manifest
}

// Save replaces everything stored for page.
func (s *Store) Save(ctx context.Context, page, output string, m *Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, `
INSERT INTO pages (page, output, rendered_at) VALUES (?, ?, ?)
ON CONFLICT(page) DO UPDATE SET output = excluded.output, rendered_at = excluded.rendered_at`,
		page, output, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("could not save page %s: %w", page, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM resources WHERE page = ?`, page); err != nil {
		return fmt.Errorf("could not clear resources for %s: %w", page, err)
	}

	if m != nil {
		for i, r := range m.All() {
			attrs, err := json.Marshal(r.Attrs)
			if err != nil {
				return fmt.Errorf("could not encode attributes of %s: %w", r.URL, err)
			}
			if _, err = tx.ExecContext(ctx, `
INSERT INTO resources (page, seq, kind, url, path, href, remote, attrs) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				page, i, string(r.Kind), r.URL, r.Path, r.Href, r.Remote, string(attrs)); err != nil {
				return fmt.Errorf("could not save resource %s: %w", r.URL, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Load returns the stored result for page, or sql.ErrNoRows.
func (s *Store) Load(ctx context.Context, page string) (*Page, error) {
	p := &Page{Page: page, Manifest: NewManifest()}

	var renderedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT output, rendered_at FROM pages WHERE page = ?`, page).
		Scan(&p.Output, &renderedAt)
	if err != nil {
		return nil, err
	}
	p.RenderedAt = time.UnixMilli(renderedAt)

	rows, err := s.db.QueryContext(ctx, `
SELECT kind, url, path, href, remote, attrs FROM resources WHERE page = ? ORDER BY seq`, page)
	if err != nil {
		return nil, fmt.Errorf("could not query resources for %s: %w", page, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r     Resource
			kind  string
			attrs string
		)
		if err := rows.Scan(&kind, &r.URL, &r.Path, &r.Href, &r.Remote, &attrs); err != nil {
			return nil, fmt.Errorf("could not scan resource: %w", err)
		}
		r.Kind = Kind(kind)
		if err := json.Unmarshal([]byte(attrs), &r.Attrs); err != nil {
			return nil, fmt.Errorf("could not decode attributes of %s: %w", r.URL, err)
		}
		p.Manifest.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating resources: %w", err)
	}
	return p, nil
}

// Pages lists every stored page in address order.
func (s *Store) Pages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT page FROM pages ORDER BY page`)
	if err != nil {
		return nil, fmt.Errorf("could not list pages: %w", err)
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var page string
		if err := rows.Scan(&page); err != nil {
			return nil, fmt.Errorf("could not scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
