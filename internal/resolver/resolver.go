// Package resolver turns public catalog URLs into persisted canonical
// metadata, with a read-through staleness policy over the record store.
package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"soundfetch/internal/core"
	"soundfetch/internal/store"
	"soundfetch/pkg/cataloglink"
)

// CatalogClient is the upstream metadata source.
type CatalogClient interface {
	GetTrack(ctx context.Context, id string) (*core.TrackMetadata, error)
	GetAlbum(ctx context.Context, id string) (*core.CollectionMetadata, error)
	GetPlaylist(ctx context.Context, id string) (*core.CollectionMetadata, error)
}

// Resolver resolves catalog URLs to metadata records. Stored records younger
// than the TTL are served without an upstream call; stale or missing records
// are fetched and upserted by identifier. The TTL applies uniformly to tracks
// and collections.
type Resolver struct {
	catalog CatalogClient
	repo    store.Repository
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func New(catalog CatalogClient, repo store.Repository, config *core.ResolverConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		catalog: catalog,
		repo:    repo,
		ttl:     config.CacheTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve parses a catalog URL and returns the matching metadata record,
// either a *core.TrackMetadata or a *core.CollectionMetadata.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (core.Record, error) {
	ref, err := cataloglink.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidURL, rawURL)
	}

	switch ref.Type {
	case cataloglink.TypeTrack:
		return r.resolveTrack(ctx, ref)
	default:
		return r.resolveCollection(ctx, ref)
	}
}

// ResolveTrack resolves a URL that must reference a track.
func (r *Resolver) ResolveTrack(ctx context.Context, rawURL string) (*core.TrackMetadata, error) {
	ref, err := cataloglink.ParseTyped(rawURL, cataloglink.TypeTrack)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidURL, rawURL)
	}
	return r.resolveTrack(ctx, ref)
}

// ResolveAlbum resolves a URL that must reference an album.
func (r *Resolver) ResolveAlbum(ctx context.Context, rawURL string) (*core.CollectionMetadata, error) {
	ref, err := cataloglink.ParseTyped(rawURL, cataloglink.TypeAlbum)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidURL, rawURL)
	}
	return r.resolveCollection(ctx, ref)
}

// ResolvePlaylist resolves a URL that must reference a playlist.
func (r *Resolver) ResolvePlaylist(ctx context.Context, rawURL string) (*core.CollectionMetadata, error) {
	ref, err := cataloglink.ParseTyped(rawURL, cataloglink.TypePlaylist)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidURL, rawURL)
	}
	return r.resolveCollection(ctx, ref)
}

func (r *Resolver) resolveTrack(ctx context.Context, ref *cataloglink.Reference) (*core.TrackMetadata, error) {
	existing, err := r.repo.GetTrack(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && r.fresh(existing.Metadata.FetchedAt) {
		r.logger.Debug("Metadata cache hit",
			zap.String("type", string(ref.Type)),
			zap.String("id", ref.ID))
		return existing, nil
	}

	fetched, err := r.catalog.GetTrack(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	fetched.Metadata = core.RecordMeta{FetchedAt: now, LastUpdated: now}
	if err := r.repo.PutTrack(ctx, fetched); err != nil {
		return nil, err
	}

	r.logger.Info("Resolved track metadata",
		zap.String("id", ref.ID),
		zap.String("title", fetched.Title),
		zap.Bool("refreshed", existing != nil))
	return fetched, nil
}

func (r *Resolver) resolveCollection(ctx context.Context, ref *cataloglink.Reference) (*core.CollectionMetadata, error) {
	existing, err := r.repo.GetCollection(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && r.fresh(existing.Metadata.FetchedAt) {
		r.logger.Debug("Metadata cache hit",
			zap.String("type", string(ref.Type)),
			zap.String("id", ref.ID))
		return existing, nil
	}

	var fetched *core.CollectionMetadata
	if ref.Type == cataloglink.TypeAlbum {
		fetched, err = r.catalog.GetAlbum(ctx, ref.ID)
	} else {
		fetched, err = r.catalog.GetPlaylist(ctx, ref.ID)
	}
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	fetched.Metadata = core.RecordMeta{FetchedAt: now, LastUpdated: now}
	fetched.Recount()
	if err := r.repo.PutCollection(ctx, fetched); err != nil {
		return nil, err
	}

	r.logger.Info("Resolved collection metadata",
		zap.String("type", string(ref.Type)),
		zap.String("id", ref.ID),
		zap.String("title", fetched.Title),
		zap.Int("tracks", fetched.TrackCount),
		zap.Bool("refreshed", existing != nil))
	return fetched, nil
}

func (r *Resolver) fresh(fetchedAt time.Time) bool {
	return r.now().Sub(fetchedAt) < r.ttl
}
