// Package cataloglink parses public Spotify catalog URLs into typed
// references for tracks, albums and playlists.
package cataloglink

import (
	"errors"
	"fmt"
	"regexp"
)

// Type is the kind of catalog resource a URL points at.
type Type string

const (
	// TypeTrack is a single track resource.
	TypeTrack Type = "track"
	// TypeAlbum is an album resource.
	TypeAlbum Type = "album"
	// TypePlaylist is a playlist resource.
	TypePlaylist Type = "playlist"
)

// ErrUnrecognized is returned when a URL matches no known catalog shape.
var ErrUnrecognized = errors.New("unrecognized catalog URL")

// Reference identifies a single catalog resource. It is immutable once
// constructed; malformed input yields no Reference at all.
type Reference struct {
	Type         Type
	ID           string
	CanonicalURL string
}

// The accepted shapes mirror the public open.spotify.com URL layout. A
// trailing query string (share links carry ?si=...) is tolerated.
var patterns = []struct {
	typ Type
	re  *regexp.Regexp
}{
	{TypeTrack, regexp.MustCompile(`^https://open\.spotify\.com/track/([a-zA-Z0-9]+)(?:\?.*)?$`)},
	{TypeAlbum, regexp.MustCompile(`^https://open\.spotify\.com/album/([a-zA-Z0-9]+)(?:\?.*)?$`)},
	{TypePlaylist, regexp.MustCompile(`^https://open\.spotify\.com/playlist/([a-zA-Z0-9]+)(?:\?.*)?$`)},
}

// Parse extracts a catalog reference from a raw URL.
func Parse(rawURL string) (*Reference, error) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		return &Reference{
			Type:         p.typ,
			ID:           m[1],
			CanonicalURL: fmt.Sprintf("https://open.spotify.com/%s/%s", p.typ, m[1]),
		}, nil
	}
	return nil, ErrUnrecognized
}

// ParseTyped parses a URL and requires it to reference the given type.
func ParseTyped(rawURL string, typ Type) (*Reference, error) {
	ref, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if ref.Type != typ {
		return nil, fmt.Errorf("%w: expected %s URL", ErrUnrecognized, typ)
	}
	return ref, nil
}
