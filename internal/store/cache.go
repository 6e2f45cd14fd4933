package store

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"soundfetch/internal/core"
)

// CachedRepository is a read-through layer over a Repository. Hot records sit
// in LRU caches; a Bloom filter over every stored identifier turns definite
// misses into no-ops that never touch the backing store.
type CachedRepository struct {
	inner Repository

	tracks      *lru.Cache[string, *core.TrackMetadata]
	collections *lru.Cache[string, *core.CollectionMetadata]

	mutex             sync.RWMutex
	known             *bloom.BloomFilter
	capacity          int
	falsePositiveRate float64
}

// NewCachedRepository wraps inner with an in-memory cache of the given
// capacity. Call Warm before serving traffic on a pre-populated store.
func NewCachedRepository(inner Repository, capacity int, falsePositiveRate float64) (*CachedRepository, error) {
	trackCache, err := lru.New[string, *core.TrackMetadata](capacity)
	if err != nil {
		return nil, err
	}
	collectionCache, err := lru.New[string, *core.CollectionMetadata](capacity)
	if err != nil {
		return nil, err
	}

	return &CachedRepository{
		inner:             inner,
		tracks:            trackCache,
		collections:       collectionCache,
		known:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}, nil
}

// Warm rebuilds the membership filter from every identifier in the backing
// store. Without this, records written by earlier runs would read as misses.
func (c *CachedRepository) Warm(ctx context.Context) error {
	ids, err := c.inner.ListIDs(ctx)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	size := uint(c.capacity)
	if uint(len(ids)) > size {
		size = uint(len(ids))
	}
	c.known = bloom.NewWithEstimates(size, c.falsePositiveRate)
	for _, id := range ids {
		c.known.AddString(id)
	}
	return nil
}

func (c *CachedRepository) GetTrack(ctx context.Context, id string) (*core.TrackMetadata, error) {
	if rec, ok := c.tracks.Get(id); ok {
		return rec, nil
	}
	if !c.mightExist(id) {
		return nil, nil
	}

	rec, err := c.inner.GetTrack(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	c.tracks.Add(id, rec)
	return rec, nil
}

func (c *CachedRepository) PutTrack(ctx context.Context, rec *core.TrackMetadata) error {
	if err := c.inner.PutTrack(ctx, rec); err != nil {
		return err
	}

	c.markKnown(rec.SpotifyID)
	// Drop instead of caching the written record: the store fills in
	// creation time, so the next read must come from it.
	c.tracks.Remove(rec.SpotifyID)
	return nil
}

func (c *CachedRepository) GetCollection(ctx context.Context, id string) (*core.CollectionMetadata, error) {
	if rec, ok := c.collections.Get(id); ok {
		return rec, nil
	}
	if !c.mightExist(id) {
		return nil, nil
	}

	rec, err := c.inner.GetCollection(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	c.collections.Add(id, rec)
	return rec, nil
}

func (c *CachedRepository) PutCollection(ctx context.Context, rec *core.CollectionMetadata) error {
	if err := c.inner.PutCollection(ctx, rec); err != nil {
		return err
	}

	c.markKnown(rec.SpotifyID)
	c.collections.Remove(rec.SpotifyID)
	return nil
}

func (c *CachedRepository) ListIDs(ctx context.Context) ([]string, error) {
	return c.inner.ListIDs(ctx)
}

func (c *CachedRepository) Close() error {
	return c.inner.Close()
}

func (c *CachedRepository) mightExist(id string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.known.TestString(id)
}

func (c *CachedRepository) markKnown(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.known.AddString(id)
}
