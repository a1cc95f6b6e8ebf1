package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"embed-resolver-go/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	video_id      TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL,
	quality       TEXT NOT NULL,
	resolved_at   TEXT NOT NULL,
	last_accessed TEXT NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS domains (
	domain   TEXT PRIMARY KEY,
	active   INTEGER NOT NULL DEFAULT 1,
	added_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
);
`

// SQLite is the file-backed Store. modernc.org/sqlite is pure Go, so no
// cgo toolchain is needed at build time.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetVideo(videoID string) (types.VideoRecord, error) {
	var rec types.VideoRecord
	var resolvedAt, lastAccessed string
	err := s.db.QueryRow(`
		SELECT video_id, title, url, quality, resolved_at, last_accessed, access_count
		FROM videos WHERE video_id = ?
	`, videoID).Scan(
		&rec.VideoID, &rec.Title, &rec.URL, &rec.Quality,
		&resolvedAt, &lastAccessed, &rec.AccessCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.VideoRecord{}, types.ErrNotFound
		}
		return types.VideoRecord{}, err
	}
	rec.ResolvedAt = parseTime(resolvedAt)
	rec.LastAccessed = parseTime(lastAccessed)
	return rec, nil
}

func (s *SQLite) PutVideo(rec types.VideoRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO videos(video_id, title, url, quality, resolved_at, last_accessed, access_count)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			quality = excluded.quality,
			resolved_at = excluded.resolved_at,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count
	`,
		rec.VideoID, rec.Title, rec.URL, rec.Quality,
		formatTime(rec.ResolvedAt), formatTime(rec.LastAccessed), rec.AccessCount,
	)
	return err
}

func (s *SQLite) TouchVideo(videoID string) error {
	res, err := s.db.Exec(`
		UPDATE videos
		SET last_accessed = ?, access_count = access_count + 1
		WHERE video_id = ?
	`, formatTime(time.Now()), videoID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *SQLite) ListVideos() ([]types.VideoRecord, error) {
	rows, err := s.db.Query(`
		SELECT video_id, title, url, quality, resolved_at, last_accessed, access_count
		FROM videos ORDER BY resolved_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.VideoRecord, 0)
	for rows.Next() {
		var rec types.VideoRecord
		var resolvedAt, lastAccessed string
		if err := rows.Scan(
			&rec.VideoID, &rec.Title, &rec.URL, &rec.Quality,
			&resolvedAt, &lastAccessed, &rec.AccessCount,
		); err != nil {
			return nil, err
		}
		rec.ResolvedAt = parseTime(resolvedAt)
		rec.LastAccessed = parseTime(lastAccessed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) ListDomains() ([]types.DomainRecord, error) {
	rows, err := s.db.Query(`SELECT domain, active, added_at FROM domains ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.DomainRecord, 0)
	for rows.Next() {
		var rec types.DomainRecord
		var active int
		var addedAt string
		if err := rows.Scan(&rec.Domain, &active, &addedAt); err != nil {
			return nil, err
		}
		rec.Active = active != 0
		rec.AddedAt = parseTime(addedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) PutDomain(rec types.DomainRecord) error {
	active := 0
	if rec.Active {
		active = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO domains(domain, active, added_at) VALUES(?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET active = excluded.active
	`, rec.Domain, active, formatTime(rec.AddedAt))
	return err
}

func (s *SQLite) DeleteDomain(domain string) error {
	res, err := s.db.Exec(`DELETE FROM domains WHERE domain = ?`, domain)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *SQLite) GetSettingsJSON() ([]byte, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return []byte(data), nil
}

func (s *SQLite) PutSettingsJSON(data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO settings(id, data) VALUES(1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, string(data))
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
