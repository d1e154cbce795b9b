package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	// overlays may come as WEBP
	_ "golang.org/x/image/webp"
)

// fitOverlay stretches the overlay to exactly w x h.
func fitOverlay(overlay image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(overlay, w, h, imaging.Lanczos)
}

// loadOverlay decodes the watermark image into RGBA. Any registered format is accepted.
func loadOverlay(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	return imaging.Clone(img), nil
}
