package spotify

import (
	"strings"

	"github.com/zmb3/spotify/v2"

	"soundfetch/internal/core"
)

const millisPerSecond = 1000

// convertTrack maps a raw track payload onto the canonical record shape.
// Missing optional fields (cover art) stay absent, never placeholders.
func convertTrack(full *spotify.FullTrack) *core.TrackMetadata {
	return &core.TrackMetadata{
		Title:      full.Name,
		Artist:     joinArtists(full.Artists),
		Album:      full.Album.Name,
		AlbumArt:   firstImageURL(full.Album.Images),
		Duration:   int(full.Duration) / millisPerSecond,
		SpotifyURL: full.ExternalURLs["spotify"],
		SpotifyID:  string(full.ID),
	}
}

func convertAlbum(full *spotify.FullAlbum) *core.CollectionMetadata {
	tracks := make([]core.TrackSummary, 0, len(full.Tracks.Tracks))
	for i := range full.Tracks.Tracks {
		t := &full.Tracks.Tracks[i]
		tracks = append(tracks, core.TrackSummary{
			Title:       t.Name,
			Artist:      joinArtists(t.Artists),
			Duration:    int(t.Duration) / millisPerSecond,
			TrackNumber: int(t.TrackNumber),
			SpotifyID:   string(t.ID),
		})
	}

	rec := &core.CollectionMetadata{
		Kind:        core.KindAlbum,
		Title:       full.Name,
		Owner:       joinArtists(full.Artists),
		ReleaseDate: full.ReleaseDate,
		CoverArt:    firstImageURL(full.Images),
		SpotifyURL:  full.ExternalURLs["spotify"],
		SpotifyID:   string(full.ID),
		Tracks:      tracks,
	}
	rec.Recount()
	return rec
}

func convertPlaylist(full *spotify.FullPlaylist) *core.CollectionMetadata {
	tracks := make([]core.TrackSummary, 0, len(full.Tracks.Tracks))
	for i := range full.Tracks.Tracks {
		t := &full.Tracks.Tracks[i].Track
		tracks = append(tracks, core.TrackSummary{
			Title:     t.Name,
			Artist:    joinArtists(t.Artists),
			Duration:  int(t.Duration) / millisPerSecond,
			SpotifyID: string(t.ID),
		})
	}

	rec := &core.CollectionMetadata{
		Kind:        core.KindPlaylist,
		Title:       full.Name,
		Owner:       full.Owner.DisplayName,
		Description: full.Description,
		CoverArt:    firstImageURL(full.Images),
		SpotifyURL:  full.ExternalURLs["spotify"],
		SpotifyID:   string(full.ID),
		Tracks:      tracks,
	}
	rec.Recount()
	return rec
}

// joinArtists renders the comma-joined artist display list.
func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func firstImageURL(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
