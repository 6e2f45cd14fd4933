package acquire

import (
	"fmt"

	"github.com/bogem/id3v2"
)

// tagFile writes the title and artist ID3 frames to the mp3 at path. The
// backend already embeds thumbnail and source metadata; this pass overrides
// the text frames with the catalog values so players show the catalog
// title/artist rather than whatever the video carried.
func tagFile(path, title, artist string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags: %w", err)
	}
	defer tag.Close()

	tag.SetTitle(title)
	tag.SetArtist(artist)

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}
