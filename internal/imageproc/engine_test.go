package imageproc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func newTestEngine() *Engine {
	return NewEngine(NewCapabilityTable())
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("out", "cat_watermarked.png"), OutputPath("out", "/in/cat.PNG"))
	require.Equal(t, filepath.Join("out", "a.b_watermarked.gif"), OutputPath("out", "a.b.gif"))
}

func TestProcessImagesStill(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		format    imaging.Format
		wantAlpha bool
	}{
		{name: "png keeps alpha", file: "base.png", format: imaging.PNG, wantAlpha: true},
		{name: "tiff keeps alpha", file: "base.tiff", format: imaging.TIFF, wantAlpha: true},
		{name: "webp keeps alpha", file: "base.webp", format: WEBP, wantAlpha: true},
		{name: "jpeg is opaque", file: "base.jpg", format: imaging.JPEG},
		{name: "bmp is opaque", file: "base.bmp", format: imaging.BMP},
		{name: "static gif", file: "base.gif", format: imaging.GIF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			base := solidImage(40, 30, color.NRGBA{R: 20, G: 40, B: 60, A: 255})
			base.SetNRGBA(0, 0, color.NRGBA{})
			basePath := writeImage(t, dir, tt.file, base, tt.format)
			wmPath := writeImage(t, dir, "wm.png", solidImage(7, 3, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), imaging.PNG)

			out, err := newTestEngine().ProcessImages(basePath, wmPath, filepath.Join(dir, "out"), 0.5)
			require.NoError(t, err)
			require.Equal(t, OutputPath(filepath.Join(dir, "out"), basePath), out)

			got := readImage(t, out)
			require.Equal(t, image.Rect(0, 0, 40, 30), got.Bounds())

			_, _, _, a := got.At(0, 0).RGBA()
			if tt.wantAlpha {
				require.Equal(t, uint32(0), a, "transparent base pixel stays transparent")
			} else {
				require.Equal(t, uint32(0xffff), a)
			}
		})
	}
}

func TestProcessImagesPNGExact(t *testing.T) {
	dir := t.TempDir()
	base := solidImage(10, 10, color.NRGBA{})
	basePath := writeImage(t, dir, "clear.png", base, imaging.PNG)
	wmPath := writeImage(t, dir, "wm.png", solidImage(10, 10, color.NRGBA{R: 255, A: 255}), imaging.PNG)

	out, err := newTestEngine().ProcessImages(basePath, wmPath, dir, 1)
	require.NoError(t, err)

	got := imaging.Clone(readImage(t, out))
	require.Equal(t, base.Pix, got.Pix)
}

func TestProcessImagesWEBPLossless(t *testing.T) {
	dir := t.TempDir()
	base := solidImage(8, 8, color.NRGBA{B: 255, A: 255})
	for x := 0; x < 8; x++ {
		base.SetNRGBA(x, 0, color.NRGBA{})
	}
	basePath := writeImage(t, dir, "photo.WEBP", base, WEBP)
	wmPath := writeImage(t, dir, "wm.png", solidImage(4, 4, color.NRGBA{R: 255, A: 255}), imaging.PNG)

	out, err := newTestEngine().ProcessImages(basePath, wmPath, dir, 1)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "photo_watermarked.webp"), out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	img, err := webp.Decode(f)
	require.NoError(t, err)
	got := imaging.Clone(img)
	require.Equal(t, uint8(0), got.NRGBAAt(3, 0).A)
	require.Equal(t, color.NRGBA{R: 255, A: 255}, got.NRGBAAt(3, 5))
}

func TestProcessImagesOverlayStretched(t *testing.T) {
	dir := t.TempDir()
	basePath := writeImage(t, dir, "big.png", solidImage(500, 500, color.NRGBA{A: 255}), imaging.PNG)
	wmPath := writeImage(t, dir, "wm.png", solidImage(20, 5, color.NRGBA{G: 255, A: 255}), imaging.PNG)

	out, err := newTestEngine().ProcessImages(basePath, wmPath, dir, 1)
	require.NoError(t, err)

	got := imaging.Clone(readImage(t, out))
	require.Equal(t, image.Rect(0, 0, 500, 500), got.Bounds())
	require.Equal(t, color.NRGBA{G: 255, A: 255}, got.NRGBAAt(499, 499))
}

func TestProcessImagesAnimatedGIF(t *testing.T) {
	dir := t.TempDir()
	basePath := writeFile(t, dir, "anim.gif", buildGIF(t, 3, []int{5, 10, 20}, 0))
	wmPath := writeImage(t, dir, "wm.png", solidImage(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), imaging.PNG)

	out, err := newTestEngine().ProcessImages(basePath, wmPath, dir, 0.3)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, g.Image, 3)
	require.Equal(t, []int{5, 10, 20}, g.Delay)
	require.Equal(t, 0, g.LoopCount)

	for _, frame := range g.Image {
		_, _, _, a := frame.At(0, 0).RGBA()
		require.Equal(t, uint32(0), a, "transparent pixel keeps the transparent index")
		_, _, _, a = frame.At(3, 3).RGBA()
		require.Equal(t, uint32(0xffff), a)
	}
}

func TestProcessImagesAnimatedPNG(t *testing.T) {
	dir := t.TempDir()
	src := &Sequence{
		Width:  6,
		Height: 6,
		Frames: []*image.NRGBA{
			solidImage(6, 6, color.NRGBA{R: 255, A: 255}),
			solidImage(6, 6, color.NRGBA{}),
			solidImage(6, 6, color.NRGBA{B: 255, A: 255}),
		},
		Delays:    []time.Duration{40 * time.Millisecond, 80 * time.Millisecond, 120 * time.Millisecond},
		LoopCount: 4,
	}
	var buf bytes.Buffer
	require.NoError(t, encodeAPNGSequence(&buf, src))
	basePath := writeFile(t, dir, "anim.png", buf.Bytes())
	wmPath := writeImage(t, dir, "wm.png", solidImage(3, 3, color.NRGBA{G: 255, A: 255}), imaging.PNG)

	out, err := newTestEngine().ProcessImages(basePath, wmPath, filepath.Join(dir, "out"), 1)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, isAPNG(data))

	got, err := decodeAPNGSequence(data)
	require.NoError(t, err)
	require.Len(t, got.Frames, 3)
	require.Equal(t, src.Delays, got.Delays)
	require.Equal(t, 4, got.LoopCount)
	require.Equal(t, color.NRGBA{G: 255, A: 255}, got.Frames[0].NRGBAAt(2, 2))
	require.Equal(t, color.NRGBA{}, got.Frames[1].NRGBAAt(2, 2), "fully transparent frame stays clear")
	require.Equal(t, color.NRGBA{G: 255, A: 255}, got.Frames[2].NRGBAAt(5, 5))
}

func TestProcessImagesFailures(t *testing.T) {
	dir := t.TempDir()
	basePath := writeImage(t, dir, "base.png", solidImage(4, 4, color.NRGBA{A: 255}), imaging.PNG)
	wmPath := writeImage(t, dir, "wm.png", solidImage(4, 4, color.NRGBA{A: 255}), imaging.PNG)
	xyzPath := writeFile(t, dir, "base.xyz", []byte("whatever"))
	brokenPath := writeFile(t, dir, "broken.png", []byte("not a png"))
	brokenWM := writeFile(t, dir, "broken_wm.png", []byte("not a png"))
	missing := filepath.Join(dir, "missing.png")
	framelessGIF := writeFile(t, dir, "frameless.gif", emptyGIF())
	cutGIF := writeFile(t, dir, "cut.gif", emptyGIF()[:12])

	blocker := writeFile(t, dir, "blocker", []byte("file, not a dir"))

	tests := []struct {
		name     string
		base     string
		overlay  string
		outDir   string
		opacity  float64
		wantKind error
		wantPath string
	}{
		{name: "missing base", base: missing, overlay: wmPath, opacity: 0.5, wantKind: ErrMissingInput, wantPath: missing},
		{name: "missing overlay", base: basePath, overlay: missing, opacity: 0.5, wantKind: ErrMissingInput, wantPath: missing},
		{name: "base is a directory", base: dir, overlay: wmPath, opacity: 0.5, wantKind: ErrMissingInput, wantPath: dir},
		{name: "unsupported extension", base: xyzPath, overlay: wmPath, opacity: 0.5, wantKind: ErrUnsupportedFormat, wantPath: xyzPath},
		{
			name: "unsupported extension checked before overlay", base: xyzPath, overlay: missing, opacity: 0.5,
			wantKind: ErrUnsupportedFormat, wantPath: xyzPath,
		},
		{name: "zero opacity", base: basePath, overlay: wmPath, opacity: 0, wantKind: ErrInvalidOpacity},
		{name: "opacity above one", base: basePath, overlay: wmPath, opacity: 1.01, wantKind: ErrInvalidOpacity},
		{name: "broken base", base: brokenPath, overlay: wmPath, opacity: 0.5, wantKind: ErrDecodeFailure, wantPath: brokenPath},
		{name: "gif without frames", base: framelessGIF, overlay: wmPath, opacity: 0.5, wantKind: ErrEmptySequence, wantPath: framelessGIF},
		{name: "truncated gif", base: cutGIF, overlay: wmPath, opacity: 0.5, wantKind: ErrDecodeFailure, wantPath: cutGIF},
		{name: "broken overlay", base: basePath, overlay: brokenWM, opacity: 0.5, wantKind: ErrDecodeFailure, wantPath: brokenWM},
		{
			name: "output folder is a file", base: basePath, overlay: wmPath, outDir: filepath.Join(blocker, "out"), opacity: 0.5,
			wantKind: ErrOutputUnwritable, wantPath: filepath.Join(blocker, "out"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := tt.outDir
			if outDir == "" {
				outDir = filepath.Join(t.TempDir(), "out")
			}

			out, err := newTestEngine().ProcessImages(tt.base, tt.overlay, outDir, tt.opacity)
			require.Empty(t, out)
			require.ErrorIs(t, err, tt.wantKind)

			var pe *ProcessError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tt.wantPath, pe.Path)

			if tt.outDir == "" {
				entries, _ := os.ReadDir(outDir)
				require.Empty(t, entries, "no partial output")
			}
		})
	}
}

func TestDecodeBaseGIFWithoutFrames(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.gif", emptyGIF())

	_, err := decodeBase(path, Capability{Format: imaging.GIF, Animatable: true})
	require.ErrorIs(t, err, ErrEmptySequence)

	var pe *ProcessError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, StageDecode, pe.Stage)
	require.Equal(t, path, pe.Path)
}

func TestWriteArtifactLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x_watermarked.png")

	err := writeArtifact(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.ErrorIs(t, err, ErrEncodeFailure)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteArtifactReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x_watermarked.png", []byte("old"))

	err := writeArtifact(path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestWriteArtifactUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "x.png")

	err := writeArtifact(path, func(io.Writer) error { return nil })
	require.ErrorIs(t, err, ErrOutputUnwritable)
}

// emptyGIF is a valid header and logical screen with no image blocks.
func emptyGIF() []byte {
	return []byte{
		'G', 'I', 'F', '8', '9', 'a',
		1, 0, 1, 0, // 1x1
		0, 0, 0, // no global color table
		0x3b, // trailer
	}
}
