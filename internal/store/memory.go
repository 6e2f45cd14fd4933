package store

import (
	"context"
	"sync"
	"time"

	"soundfetch/internal/core"
)

// MemoryRepository is an in-memory Repository used by tests and by
// deployments that do not want persistence across restarts.
type MemoryRepository struct {
	mu          sync.RWMutex
	tracks      map[string]*core.TrackMetadata
	collections map[string]*core.CollectionMetadata
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tracks:      make(map[string]*core.TrackMetadata),
		collections: make(map[string]*core.CollectionMetadata),
	}
}

func (r *MemoryRepository) GetTrack(_ context.Context, id string) (*core.TrackMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.tracks[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) PutTrack(_ context.Context, rec *core.TrackMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	if existing, ok := r.tracks[rec.SpotifyID]; ok {
		cp.Metadata.CreatedAt = existing.Metadata.CreatedAt
	} else {
		cp.Metadata.CreatedAt = time.Now().UTC()
	}
	r.tracks[rec.SpotifyID] = &cp
	return nil
}

func (r *MemoryRepository) GetCollection(_ context.Context, id string) (*core.CollectionMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.collections[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) PutCollection(_ context.Context, rec *core.CollectionMetadata) error {
	rec.Recount()

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	if existing, ok := r.collections[rec.SpotifyID]; ok {
		cp.Metadata.CreatedAt = existing.Metadata.CreatedAt
	} else {
		cp.Metadata.CreatedAt = time.Now().UTC()
	}
	r.collections[rec.SpotifyID] = &cp
	return nil
}

func (r *MemoryRepository) ListIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tracks)+len(r.collections))
	for id := range r.tracks {
		ids = append(ids, id)
	}
	for id := range r.collections {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MemoryRepository) Close() error { return nil }
