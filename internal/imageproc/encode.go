package imageproc

import (
	"bufio"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/kettek/apng"
)

func encodeStill(w io.Writer, img *image.NRGBA, cls Classification, q draw.Quantizer) error {
	if cls.Target == ModeRGB {
		img = flattenRGB(img)
	}

	var opts []imaging.EncodeOption
	switch cls.Format {
	case WEBP:
		return nativewebp.Encode(w, img, nil)
	case imaging.JPEG:
		opts = append(opts, imaging.JPEGQuality(95))
	case imaging.GIF:
		opts = append(opts, imaging.GIFQuantizer(q))
	}
	return imaging.Encode(w, img, cls.Format, opts...)
}

func encodeSequence(w io.Writer, seq *Sequence, cls Classification, q kmeansQuantizer) error {
	if cls.Indexed {
		return encodeGIFSequence(w, seq, q)
	}
	return encodeAPNGSequence(w, seq)
}

// encodeGIFSequence writes full-canvas indexed frames that are cleared to background after
// display, so stale pixels never show through transparent regions. All frames share one palette.
func encodeGIFSequence(w io.Writer, seq *Sequence, q kmeansQuantizer) error {
	pal := q.sequencePalette(seq.Frames)
	g := &gif.GIF{
		LoopCount: seq.LoopCount,
		Config:    image.Config{Width: seq.Width, Height: seq.Height},
	}
	for i, frame := range seq.Frames {
		g.Image = append(g.Image, toPaletted(frame, pal))
		g.Delay = append(g.Delay, gifDelay(frameDelay(seq.Delays, i)))
		g.Disposal = append(g.Disposal, gif.DisposalBackground)
	}
	return gif.EncodeAll(w, g)
}

// gifDelay converts to hundredths of a second, never below one.
func gifDelay(d time.Duration) int {
	return max(int((d+5*time.Millisecond)/(10*time.Millisecond)), 1)
}

func encodeAPNGSequence(w io.Writer, seq *Sequence) error {
	a := apng.APNG{LoopCount: uint(seq.LoopCount)}
	for i, frame := range seq.Frames {
		ms := min(frameDelay(seq.Delays, i).Milliseconds(), 65535)
		a.Frames = append(a.Frames, apng.Frame{
			Image:            frame,
			DelayNumerator:   uint16(ms),
			DelayDenominator: 1000,
			DisposeOp:        apng.DISPOSE_OP_BACKGROUND,
			BlendOp:          apng.BLEND_OP_SOURCE,
		})
	}
	return apng.Encode(w, a)
}

// writeArtifact encodes into a temp file next to path and renames it into place, so path is
// either absent or complete.
func writeArtifact(path string, encode func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return newProcessError(ErrOutputUnwritable, StageEncode, path, err)
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return newProcessError(ErrEncodeFailure, StageEncode, path, err)
	}

	bw := bufio.NewWriter(tmp)
	if err := encode(bw); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return newProcessError(ErrEncodeFailure, StageEncode, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return newProcessError(ErrEncodeFailure, StageEncode, path, err)
	}
	return nil
}
