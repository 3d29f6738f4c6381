// Package store persists oEmbed markup between runs in a local SQLite file.
// Feed data is never stored; every digest reads the group live.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Embed is one cached oEmbed response.
type Embed struct {
	URL       string
	Host      string
	HTML      string
	FetchedAt time.Time
	Hits      int
}

// HostStats summarizes cached markup for one provider host.
type HostStats struct {
	Host        string
	Entries     int
	Hits        int
	LastFetched time.Time
}

// Stats summarizes the whole cache.
type Stats struct {
	Entries int
	Oldest  time.Time
	Newest  time.Time
	Hosts   []HostStats
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetEmbed returns cached markup for contentURL and counts the hit.
func (s *Store) GetEmbed(ctx context.Context, contentURL string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var html string
	err := s.db.QueryRowContext(ctx, "SELECT html FROM oembed WHERE url = ?", contentURL).Scan(&html)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query embed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE oembed SET hits = hits + 1 WHERE url = ?", contentURL); err != nil {
		return "", false, fmt.Errorf("count embed hit: %w", err)
	}
	return html, true, nil
}

// PutEmbed stores or replaces markup for contentURL.
func (s *Store) PutEmbed(ctx context.Context, contentURL, html string, fetchedAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(contentURL) == "" {
		return errors.New("url is required")
	}
	if strings.TrimSpace(html) == "" {
		return errors.New("html is required")
	}
	if fetchedAt.IsZero() {
		return errors.New("fetched_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oembed (url, host, html, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			html = excluded.html,
			fetched_at = excluded.fetched_at
	`, contentURL, hostOf(contentURL), html, formatTime(fetchedAt))
	if err != nil {
		return fmt.Errorf("upsert embed: %w", err)
	}
	return nil
}

// ListEmbeds returns cached entries, most recently fetched first.
func (s *Store) ListEmbeds(ctx context.Context) ([]Embed, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT url, host, html, fetched_at, hits FROM oembed ORDER BY fetched_at DESC, url")
	if err != nil {
		return nil, fmt.Errorf("query embeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Embed
	for rows.Next() {
		var (
			e         Embed
			fetchedAt string
		)
		if err := rows.Scan(&e.URL, &e.Host, &e.HTML, &fetchedAt, &e.Hits); err != nil {
			return nil, fmt.Errorf("scan embed: %w", err)
		}
		ts, err := parseTime(fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parse fetched_at: %w", err)
		}
		e.FetchedAt = ts
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeds: %w", err)
	}
	return out, nil
}

// PruneOld deletes markup fetched more than retainDays ago. Returns the
// number of entries removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(s.now().AddDate(0, 0, -retainDays))

	res, err := s.db.ExecContext(ctx, "DELETE FROM oembed WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old embeds: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// Stats reports entry counts overall and per host.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		st             Stats
		oldest, newest sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at) FROM oembed",
	).Scan(&st.Entries, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	if st.Entries == 0 {
		return st, nil
	}
	if st.Oldest, err = parseTime(oldest.String); err != nil {
		return Stats{}, fmt.Errorf("parse oldest: %w", err)
	}
	if st.Newest, err = parseTime(newest.String); err != nil {
		return Stats{}, fmt.Errorf("parse newest: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT host, COUNT(*), SUM(hits), MAX(fetched_at)
		FROM oembed
		GROUP BY host
		ORDER BY COUNT(*) DESC, host
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("query host stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			hs   HostStats
			last string
		)
		if err := rows.Scan(&hs.Host, &hs.Entries, &hs.Hits, &last); err != nil {
			return Stats{}, fmt.Errorf("scan host stats: %w", err)
		}
		if hs.LastFetched, err = parseTime(last); err != nil {
			return Stats{}, fmt.Errorf("parse last fetched: %w", err)
		}
		st.Hosts = append(st.Hosts, hs)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate host stats: %w", err)
	}
	return st, nil
}

func hostOf(contentURL string) string {
	u, err := url.Parse(contentURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
