package imageproc

import (
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/cenkalti/dominantcolor"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

const (
	// paletteColors is the adaptive palette size of indexed frames; one more index is
	// reserved for transparency.
	paletteColors    = 255
	transparentIndex = 255
	// pixels with alpha below this are painted with the transparent index
	transparentThreshold = 128

	quantizeSamples = 2048
	// clustering stops once fewer than 1% of the samples move between clusters
	quantizeDelta = 0.01
)

// kmeansQuantizer builds adaptive palettes by k-means clustering of the image colors.
// Images that already have few enough colors get an exact palette.
// It satisfies draw.Quantizer, so imaging's GIF encoder uses it as well.
type kmeansQuantizer struct {
	maxSamples int
}

func newQuantizer() kmeansQuantizer {
	return kmeansQuantizer{maxSamples: quantizeSamples}
}

func (q kmeansQuantizer) Quantize(p color.Palette, m image.Image) color.Palette {
	room := cap(p) - len(p)
	if room <= 0 {
		return p
	}
	img, ok := m.(*image.NRGBA)
	if !ok {
		img = imaging.Clone(m)
	}
	for _, c := range q.adaptivePalette([]*image.NRGBA{img}, room) {
		p = append(p, c)
	}
	return p
}

// sequencePalette clusters once over samples drawn from every frame, so the whole animation
// shares a single palette: paletteColors entries plus the transparent one.
func (q kmeansQuantizer) sequencePalette(frames []*image.NRGBA) color.Palette {
	pal := make(color.Palette, 0, paletteColors+1)
	for _, c := range q.adaptivePalette(frames, paletteColors) {
		pal = append(pal, c)
	}
	for len(pal) < paletteColors {
		pal = append(pal, color.NRGBA{A: 0xff})
	}
	return append(pal, color.NRGBA{})
}

func (q kmeansQuantizer) adaptivePalette(frames []*image.NRGBA, k int) []color.NRGBA {
	total := 0
	for _, img := range frames {
		total += img.Bounds().Dx() * img.Bounds().Dy()
	}
	if total == 0 {
		return nil
	}

	if exact := distinctColors(frames, k); exact != nil {
		return exact
	}

	step := 1
	if q.maxSamples > 0 && total > q.maxSamples {
		step = int(math.Sqrt(float64(total)/float64(q.maxSamples))) + 1
	}

	dataset := make(clusters.Observations, 0, q.maxSamples+len(frames))
	for _, img := range frames {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		for y := 0; y < h; y += step {
			for x := 0; x < w; x += step {
				i := y*img.Stride + x*4
				if img.Pix[i+3] < transparentThreshold {
					continue
				}
				dataset = append(dataset, clusters.Coordinates{
					float64(img.Pix[i]) / 255,
					float64(img.Pix[i+1]) / 255,
					float64(img.Pix[i+2]) / 255,
				})
			}
		}
	}
	if len(dataset) == 0 {
		return []color.NRGBA{{A: 0xff}}
	}

	km, err := kmeans.NewWithOptions(quantizeDelta, nil)
	if err != nil {
		return fallbackPalette(frames[0], k)
	}
	cc, err := km.Partition(dataset, min(k, len(dataset)))
	if err != nil || len(cc) == 0 {
		return fallbackPalette(frames[0], k)
	}

	// most populated clusters first
	slices.SortFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	res := make([]color.NRGBA, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		res = append(res, centerColor(c.Center))
	}
	if len(res) == 0 {
		return fallbackPalette(frames[0], k)
	}
	return res
}

// distinctColors returns the opaque colors of all frames if there are at most k of them,
// nil otherwise.
func distinctColors(frames []*image.NRGBA, k int) []color.NRGBA {
	seen := make(map[color.NRGBA]struct{}, k)
	res := make([]color.NRGBA, 0, k)

	for _, img := range frames {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*img.Stride + x*4
				if img.Pix[i+3] < transparentThreshold {
					continue
				}
				c := color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: 0xff}
				if _, ok := seen[c]; ok {
					continue
				}
				if len(res) == k {
					return nil
				}
				seen[c] = struct{}{}
				res = append(res, c)
			}
		}
	}
	if len(res) == 0 {
		res = append(res, color.NRGBA{A: 0xff})
	}
	return res
}

// fallbackPalette is used when clustering fails: dominant colors by weight, or mid gray.
func fallbackPalette(img image.Image, k int) []color.NRGBA {
	res := make([]color.NRGBA, 0, k)
	for _, c := range dominantcolor.FindWeight(img, k) {
		res = append(res, color.NRGBA{R: c.RGBA.R, G: c.RGBA.G, B: c.RGBA.B, A: 0xff})
	}
	if len(res) == 0 {
		res = append(res, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
	}
	return res
}

// centerColor converts a cluster center in unit RGB to an opaque color.
func centerColor(center clusters.Coordinates) color.NRGBA {
	r, g, b := colorful.Color{R: center[0], G: center[1], B: center[2]}.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// toPaletted converts a composited frame to an indexed one using pal, whose last entry at
// transparentIndex is painted wherever the frame alpha is below transparentThreshold.
// Opaque pixels map to the nearest of the other entries. Partial alpha is lost here.
func toPaletted(frame *image.NRGBA, pal color.Palette) *image.Paletted {
	bounds := image.Rect(0, 0, frame.Bounds().Dx(), frame.Bounds().Dy())
	pm := image.NewPaletted(bounds, pal)
	opaque := pal[:transparentIndex]

	// frames share few distinct colors, nearest lookups are cached per call
	nearest := make(map[[3]uint8]uint8)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*frame.Stride + x*4
			if frame.Pix[i+3] < transparentThreshold {
				pm.Pix[y*pm.Stride+x] = transparentIndex
				continue
			}
			key := [3]uint8{frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2]}
			idx, ok := nearest[key]
			if !ok {
				idx = uint8(opaque.Index(color.NRGBA{R: key[0], G: key[1], B: key[2], A: 0xff}))
				nearest[key] = idx
			}
			pm.Pix[y*pm.Stride+x] = idx
		}
	}
	return pm
}
