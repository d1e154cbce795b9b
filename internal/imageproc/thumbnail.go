package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Thumbnailer renders PNG previews of stored watermarks, keeping their transparency.
type Thumbnailer struct {
	maxSide int
}

// NewThumbnailer returns a Thumbnailer that never renders a side longer than maxSide.
func NewThumbnailer(maxSide int) *Thumbnailer {
	return &Thumbnailer{maxSide: maxSide}
}

// Preview decodes the image from r and fits it into a size x size box. A size of 0 or above
// the configured maximum is clamped to the maximum. The aspect ratio is kept.
func (t *Thumbnailer) Preview(r io.Reader, size int) (io.Reader, int64, error) {
	if r == nil {
		return nil, -1, errors.New("nil reader provided to Thumbnailer")
	}
	if size <= 0 || size > t.maxSide {
		size = t.maxSide
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode watermark in Thumbnailer: %w", err)
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, 0, fmt.Errorf("failed to encode preview in Thumbnailer: %w", err)
	}
	return &buf, int64(buf.Len()), nil
}
