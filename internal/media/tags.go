package media

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

type Tags struct {
	Title  string
	Artist string
	Album  string
	Format string
}

// ProbeTags reads embedded metadata from a media container. Files without
// readable metadata report ok=false rather than an error.
func ProbeTags(path string) (Tags, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, false, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, false, nil
	}

	return Tags{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
		Format: string(meta.Format()),
	}, true, nil
}
