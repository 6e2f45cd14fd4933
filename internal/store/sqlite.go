// Package store persists resolved catalog metadata keyed by identifier and
// caches hot records in memory.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"go.uber.org/zap"

	"soundfetch/internal/core"
)

// Repository is the persistent store contract: upsert-by-identifier writes
// and reads by identifier. A miss is (nil, nil), not an error.
type Repository interface {
	GetTrack(ctx context.Context, id string) (*core.TrackMetadata, error)
	PutTrack(ctx context.Context, rec *core.TrackMetadata) error
	GetCollection(ctx context.Context, id string) (*core.CollectionMetadata, error)
	PutCollection(ctx context.Context, rec *core.CollectionMetadata) error
	// ListIDs returns every stored catalog identifier, for cache warming.
	ListIDs(ctx context.Context) ([]string, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	spotify_id   TEXT PRIMARY KEY,
	spotify_url  TEXT NOT NULL UNIQUE,
	record       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	fetched_at   INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS collections (
	spotify_id   TEXT PRIMARY KEY,
	spotify_url  TEXT NOT NULL UNIQUE,
	record       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	fetched_at   INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
`

// SQLiteRepository is the sqlite-backed Repository implementation.
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRepository opens (and migrates) the metadata database at path.
func NewSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	// sqlite handles one writer; a single connection avoids SQLITE_BUSY
	// under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metadata store: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetTrack(ctx context.Context, id string) (*core.TrackMetadata, error) {
	var rec core.TrackMetadata
	ok, err := r.get(ctx, "tracks", id, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRepository) PutTrack(ctx context.Context, rec *core.TrackMetadata) error {
	return r.put(ctx, "tracks", rec.SpotifyID, rec.SpotifyURL, &rec.Metadata, rec)
}

func (r *SQLiteRepository) GetCollection(ctx context.Context, id string) (*core.CollectionMetadata, error) {
	var rec core.CollectionMetadata
	ok, err := r.get(ctx, "collections", id, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRepository) PutCollection(ctx context.Context, rec *core.CollectionMetadata) error {
	rec.Recount()
	return r.put(ctx, "collections", rec.SpotifyID, rec.SpotifyURL, &rec.Metadata, rec)
}

func (r *SQLiteRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT spotify_id FROM tracks UNION SELECT spotify_id FROM collections`)
	if err != nil {
		return nil, fmt.Errorf("list stored identifiers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) get(ctx context.Context, table, id string, dest any) (bool, error) {
	var (
		payload   string
		createdAt int64
	)
	//nolint:gosec // table is always "tracks" or "collections"
	query := fmt.Sprintf(`SELECT record, created_at FROM %s WHERE spotify_id = ?`, table)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s record %s: %w", table, id, err)
	}

	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return false, fmt.Errorf("decode %s record %s: %w", table, id, err)
	}

	// Creation time lives in its own column so upserts cannot clobber it.
	switch rec := dest.(type) {
	case *core.TrackMetadata:
		rec.Metadata.CreatedAt = time.Unix(createdAt, 0).UTC()
	case *core.CollectionMetadata:
		rec.Metadata.CreatedAt = time.Unix(createdAt, 0).UTC()
	}

	return true, nil
}

func (r *SQLiteRepository) put(ctx context.Context, table, id, url string, meta *core.RecordMeta, rec any) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record %s: %w", table, id, err)
	}

	//nolint:gosec // table is always "tracks" or "collections"
	query := fmt.Sprintf(`
		INSERT INTO %s (spotify_id, spotify_url, record, created_at, fetched_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(spotify_id) DO UPDATE SET
			spotify_url  = excluded.spotify_url,
			record       = excluded.record,
			fetched_at   = excluded.fetched_at,
			last_updated = excluded.last_updated`, table)

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, query,
		id, url, string(payload), now.Unix(), meta.FetchedAt.Unix(), meta.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("upsert %s record %s: %w", table, id, err)
	}
	return nil
}
