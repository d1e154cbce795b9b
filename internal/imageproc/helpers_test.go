package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// gradientImage varies red along x and green along y, so every pixel has its own color.
func gradientImage(w, h int, blue uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: blue, A: 255})
		}
	}
	return img
}

func encodeImage(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()

	var buf bytes.Buffer
	if format == WEBP {
		require.NoError(t, nativewebp.Encode(&buf, img, nil))
		return buf.Bytes()
	}
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeImage(t *testing.T, dir, name string, img image.Image, format imaging.Format) string {
	t.Helper()
	return writeFile(t, dir, name, encodeImage(t, img, format))
}

func readImage(t *testing.T, path string) image.Image {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}
