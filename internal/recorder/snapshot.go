package recorder

import (
	"fmt"
	"image"
	"time"

	"github.com/anthonynsimon/bild/imgio"
)

// SaveSnapshot writes img as a PNG file.
func SaveSnapshot(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}

// Snapshot describes a saved still image.
type Snapshot struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Seq      uint64    `json:"seq"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Captured time.Time `json:"captured"`
}
