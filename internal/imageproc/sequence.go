package imageproc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kettek/apng"
)

const defaultFrameDelay = 100 * time.Millisecond

// Sequence is a decoded animation: full-canvas frames in presentation order.
type Sequence struct {
	Width, Height int
	Frames        []*image.NRGBA
	Delays        []time.Duration
	// LoopCount 0 means loop forever.
	LoopCount int
}

// CompositeSequence applies Composite to every frame, keeping order, delays and loop count.
// The overlay is fitted to the canvas once and reused for all frames.
func CompositeSequence(seq *Sequence, overlay *image.NRGBA, opacity float64) (*Sequence, error) {
	if seq == nil || len(seq.Frames) == 0 {
		return nil, ErrEmptySequence
	}

	if overlay.Bounds().Dx() != seq.Width || overlay.Bounds().Dy() != seq.Height {
		overlay = fitOverlay(overlay, seq.Width, seq.Height)
	}

	res := &Sequence{
		Width:     seq.Width,
		Height:    seq.Height,
		Frames:    make([]*image.NRGBA, len(seq.Frames)),
		Delays:    make([]time.Duration, len(seq.Frames)),
		LoopCount: seq.LoopCount,
	}
	for i, frame := range seq.Frames {
		res.Frames[i] = Composite(frame, overlay, opacity)
		res.Delays[i] = frameDelay(seq.Delays, i)
	}
	return res, nil
}

func frameDelay(delays []time.Duration, i int) time.Duration {
	if i < len(delays) && delays[i] > 0 {
		return delays[i]
	}
	return defaultFrameDelay
}

// decodeGIFSequence renders every GIF frame onto the logical screen, honoring the
// disposal method of the previous frame.
func decodeGIFSequence(data []byte) (*Sequence, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		// the decoder refuses a well-formed stream that carries no image blocks
		if gifWithoutFrames(data) {
			return nil, ErrEmptySequence
		}
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, ErrEmptySequence
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, frame := range g.Image {
			bounds = bounds.Union(frame.Bounds())
		}
		bounds.Min = image.Point{}
	}

	seq := &Sequence{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		LoopCount: max(g.LoopCount, 0), // -1 (no loop extension) is treated as forever
	}

	canvas := image.NewNRGBA(bounds)
	var saved []byte
	for i, frame := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = append(saved[:0], canvas.Pix...)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		seq.Frames = append(seq.Frames, imaging.Clone(canvas))

		delay := defaultFrameDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		seq.Delays = append(seq.Delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, saved)
		}
	}
	return seq, nil
}

// gifWithoutFrames reports whether data is a GIF stream that reaches its trailer without a
// single image descriptor. Malformed streams report false.
func gifWithoutFrames(data []byte) bool {
	const (
		headerLen     = 13 // signature + logical screen descriptor
		extIntroducer = 0x21
		trailer       = 0x3b
	)
	if len(data) < headerLen || !bytes.HasPrefix(data, []byte("GIF8")) {
		return false
	}

	pos := headerLen
	if flags := data[10]; flags&0x80 != 0 {
		pos += 3 << (flags&0x07 + 1)
	}
	for pos < len(data) {
		switch data[pos] {
		case trailer:
			return true
		case extIntroducer:
			// introducer, label, then data sub-blocks up to a zero-length one
			pos += 2
			for pos < len(data) && data[pos] != 0 {
				pos += int(data[pos]) + 1
			}
			pos++
		default:
			// image separator, or not a GIF block at all
			return false
		}
	}
	return false
}

// isAPNG reports whether PNG data carries an animation control chunk before the first image
// data chunk. Chunks are walked by their headers, so chunk payloads are never matched.
func isAPNG(data []byte) bool {
	const sigLen = 8
	if len(data) < sigLen {
		return false
	}

	pos := sigLen
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		switch string(data[pos+4 : pos+8]) {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		// length, type, payload, crc
		next := pos + 12 + length
		if length < 0 || next <= pos {
			return false
		}
		pos = next
	}
	return false
}

// decodeAPNGSequence renders APNG frames onto the canvas using their blend and dispose ops.
// The default image, when it is not part of the animation, is skipped.
func decodeAPNGSequence(data []byte) (*Sequence, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode apng header: %w", err)
	}

	a, err := apng.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode apng: %w", err)
	}

	frames := make([]apng.Frame, 0, len(a.Frames))
	for _, f := range a.Frames {
		if f.IsDefault || f.Image == nil {
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}

	seq := &Sequence{
		Width:     cfg.Width,
		Height:    cfg.Height,
		LoopCount: int(a.LoopCount),
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	var saved []byte
	for _, f := range frames {
		rect := apngFrameRect(f)
		if f.DisposeOp == apng.DISPOSE_OP_PREVIOUS {
			saved = append(saved[:0], canvas.Pix...)
		}

		op := draw.Over
		if f.BlendOp == apng.BLEND_OP_SOURCE {
			op = draw.Src
		}
		draw.Draw(canvas, rect, f.Image, f.Image.Bounds().Min, op)
		seq.Frames = append(seq.Frames, imaging.Clone(canvas))
		seq.Delays = append(seq.Delays, apngDelay(f))

		switch f.DisposeOp {
		case apng.DISPOSE_OP_BACKGROUND:
			draw.Draw(canvas, rect, image.Transparent, image.Point{}, draw.Src)
		case apng.DISPOSE_OP_PREVIOUS:
			copy(canvas.Pix, saved)
		}
	}
	return seq, nil
}

func apngFrameRect(f apng.Frame) image.Rectangle {
	b := f.Image.Bounds()
	if b.Min == (image.Point{}) {
		return b.Add(image.Pt(f.XOffset, f.YOffset))
	}
	return b
}

func apngDelay(f apng.Frame) time.Duration {
	if f.DelayNumerator == 0 {
		return defaultFrameDelay
	}
	den := time.Duration(f.DelayDenominator)
	if den == 0 {
		den = 100
	}
	return time.Duration(f.DelayNumerator) * time.Second / den
}
