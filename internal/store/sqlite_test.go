package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"soundfetch/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metadata.db")
	repo, err := NewSQLiteRepository(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteRepository() failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testTrack(id string) *core.TrackMetadata {
	now := time.Now().UTC().Truncate(time.Second)
	return &core.TrackMetadata{
		Title:      "X",
		Artist:     "Y",
		Album:      "Z",
		AlbumArt:   "u",
		Duration:   200,
		SpotifyURL: "https://open.spotify.com/track/" + id,
		SpotifyID:  id,
		Metadata:   core.RecordMeta{FetchedAt: now, LastUpdated: now},
	}
}

func TestSQLiteRepository_TrackRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if rec, err := repo.GetTrack(ctx, "missing"); err != nil || rec != nil {
		t.Fatalf("GetTrack(missing) = (%v, %v), want (nil, nil)", rec, err)
	}

	want := testTrack("abc123")
	if err := repo.PutTrack(ctx, want); err != nil {
		t.Fatalf("PutTrack() failed: %v", err)
	}

	got, err := repo.GetTrack(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetTrack() failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetTrack() returned nil for stored record")
	}
	if got.Title != want.Title || got.Artist != want.Artist || got.Duration != want.Duration {
		t.Errorf("GetTrack() = %+v, want %+v", got, want)
	}
	if got.Metadata.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated on read")
	}
}

func TestSQLiteRepository_UpsertPreservesCreation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := testTrack("abc123")
	if err := repo.PutTrack(ctx, first); err != nil {
		t.Fatalf("PutTrack() failed: %v", err)
	}

	stored, err := repo.GetTrack(ctx, "abc123")
	if err != nil || stored == nil {
		t.Fatalf("GetTrack() = (%v, %v)", stored, err)
	}
	created := stored.Metadata.CreatedAt

	time.Sleep(1100 * time.Millisecond)

	second := testTrack("abc123")
	second.Title = "X (refreshed)"
	second.Metadata.FetchedAt = time.Now().UTC()
	second.Metadata.LastUpdated = second.Metadata.FetchedAt
	if err := repo.PutTrack(ctx, second); err != nil {
		t.Fatalf("PutTrack() upsert failed: %v", err)
	}

	got, err := repo.GetTrack(ctx, "abc123")
	if err != nil || got == nil {
		t.Fatalf("GetTrack() = (%v, %v)", got, err)
	}
	if got.Title != "X (refreshed)" {
		t.Errorf("Title = %q, upsert did not overwrite fields", got.Title)
	}
	if !got.Metadata.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want original %v", got.Metadata.CreatedAt, created)
	}
}

func TestSQLiteRepository_CollectionRecount(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := &core.CollectionMetadata{
		Kind:       core.KindAlbum,
		Title:      "The Album",
		Owner:      "A",
		SpotifyURL: "https://open.spotify.com/album/alb1",
		SpotifyID:  "alb1",
		// Deliberately wrong count; the store must derive it.
		TrackCount: 42,
		Tracks: []core.TrackSummary{
			{Title: "One", Duration: 180},
			{Title: "Two", Duration: 240},
		},
		Metadata: core.RecordMeta{FetchedAt: time.Now().UTC(), LastUpdated: time.Now().UTC()},
	}
	if err := repo.PutCollection(ctx, rec); err != nil {
		t.Fatalf("PutCollection() failed: %v", err)
	}

	got, err := repo.GetCollection(ctx, "alb1")
	if err != nil || got == nil {
		t.Fatalf("GetCollection() = (%v, %v)", got, err)
	}
	if got.TrackCount != len(got.Tracks) {
		t.Errorf("TrackCount = %d, want %d", got.TrackCount, len(got.Tracks))
	}
}

func TestSQLiteRepository_ListIDs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.PutTrack(ctx, testTrack("t1")); err != nil {
		t.Fatalf("PutTrack() failed: %v", err)
	}
	coll := &core.CollectionMetadata{
		Kind:       core.KindPlaylist,
		Title:      "Mix",
		Owner:      "DJ",
		SpotifyURL: "https://open.spotify.com/playlist/p1",
		SpotifyID:  "p1",
		Metadata:   core.RecordMeta{FetchedAt: time.Now().UTC(), LastUpdated: time.Now().UTC()},
	}
	if err := repo.PutCollection(ctx, coll); err != nil {
		t.Fatalf("PutCollection() failed: %v", err)
	}

	ids, err := repo.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ListIDs() = %v, want 2 identifiers", ids)
	}
}
