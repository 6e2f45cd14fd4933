// Package core defines the shared domain types, configuration and error
// taxonomy for the soundfetch service.
package core

import "time"

// CatalogKind identifies the kind of a persisted collection record.
type CatalogKind string

const (
	// KindAlbum marks a collection record that originated from an album.
	KindAlbum CatalogKind = "album"
	// KindPlaylist marks a collection record that originated from a playlist.
	KindPlaylist CatalogKind = "playlist"
)

// RecordMeta carries the bookkeeping timestamps of a persisted record.
type RecordMeta struct {
	FetchedAt   time.Time `json:"fetchedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// TrackMetadata is the canonical persisted shape of a resolved track.
type TrackMetadata struct {
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album,omitempty"`
	AlbumArt   string     `json:"albumArt,omitempty"`
	Duration   int        `json:"duration"`
	SpotifyURL string     `json:"spotifyUrl"`
	SpotifyID  string     `json:"spotifyId"`
	Metadata   RecordMeta `json:"metadata"`
}

// CatalogID returns the unique catalog identifier of the track.
func (t *TrackMetadata) CatalogID() string { return t.SpotifyID }

// TrackSummary is a lightweight track entry embedded in a collection record.
type TrackSummary struct {
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Duration    int    `json:"duration"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	SpotifyID   string `json:"spotifyId,omitempty"`
}

// CollectionMetadata is the canonical persisted shape of a resolved album or
// playlist. TrackCount is always derived from Tracks, never taken from
// upstream input.
type CollectionMetadata struct {
	Kind        CatalogKind    `json:"kind"`
	Title       string         `json:"title"`
	Owner       string         `json:"owner"`
	Description string         `json:"description,omitempty"`
	ReleaseDate string         `json:"releaseDate,omitempty"`
	CoverArt    string         `json:"coverArt,omitempty"`
	TrackCount  int            `json:"trackCount"`
	SpotifyURL  string         `json:"spotifyUrl"`
	SpotifyID   string         `json:"spotifyId"`
	Tracks      []TrackSummary `json:"tracks"`
	Metadata    RecordMeta     `json:"metadata"`
}

// CatalogID returns the unique catalog identifier of the collection.
func (c *CollectionMetadata) CatalogID() string { return c.SpotifyID }

// Recount recomputes TrackCount from the embedded track list. It must run
// immediately before every persisted write.
func (c *CollectionMetadata) Recount() { c.TrackCount = len(c.Tracks) }

// Record is implemented by every persistable metadata record.
type Record interface {
	CatalogID() string
}

// SearchCandidate is a scored external video considered as an audio source.
// Candidates are ephemeral and never persisted.
type SearchCandidate struct {
	Locator      string  `json:"locator"`
	DisplayTitle string  `json:"displayTitle"`
	Duration     int     `json:"duration"`
	MatchScore   float64 `json:"matchScore"`
}

// AcquisitionRequest describes a track acquisition ask. It is only used to
// derive a search query and an output filename.
type AcquisitionRequest struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	SpotifyID string `json:"spotifyId"`
}
