package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

// Composite blends overlay onto base with straight-alpha "over" compositing and returns a
// fresh RGBA frame of the base's size. Neither input is modified.
//
// The overlay alpha is scaled by opacity (truncated to 8 bits) and the overlay is wiped
// wherever the base is fully transparent, so the watermark never shows up in regions the
// base left transparent. Opacity range is the caller's responsibility.
func Composite(base image.Image, overlay *image.NRGBA, opacity float64) *image.NRGBA {
	dst := imaging.Clone(base)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	if overlay.Bounds().Dx() != w || overlay.Bounds().Dy() != h {
		overlay = fitOverlay(overlay, w, h)
	}

	var mask []bool
	if hasAlphaChannel(base) {
		mask = alphaMask(dst)
	}

	adjusted := adjustOverlay(overlay, opacity, mask)
	blendOver(dst, adjusted)
	return dst
}

// alphaMask marks pixels whose alpha is exactly zero.
func alphaMask(img *image.NRGBA) []bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			mask[y*w+x] = row[x*4+3] == 0
		}
	}
	return mask
}

// opacityTable maps every 8-bit alpha to floor(alpha*opacity).
func opacityTable(opacity float64) [256]uint8 {
	var lut [256]uint8
	for a := range lut {
		lut[a] = uint8(float64(a) * opacity)
	}
	return lut
}

func adjustOverlay(overlay *image.NRGBA, opacity float64, mask []bool) *image.NRGBA {
	w, h := overlay.Bounds().Dx(), overlay.Bounds().Dy()
	res := image.NewNRGBA(image.Rect(0, 0, w, h))
	lut := opacityTable(opacity)

	for y := 0; y < h; y++ {
		src := overlay.Pix[y*overlay.Stride : y*overlay.Stride+w*4]
		dst := res.Pix[y*res.Stride : y*res.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			if mask != nil && mask[y*w+x] {
				continue // stays (0,0,0,0)
			}
			dst[i] = src[i]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i+2]
			dst[i+3] = lut[src[i+3]]
		}
	}
	return res
}

// blendOver composites src over dst in place. Both are straight-alpha and the same size.
func blendOver(dst, src *image.NRGBA) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for y := 0; y < h; y++ {
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		s := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			sa := uint32(s[i+3])
			switch sa {
			case 0:
				continue
			case 255:
				copy(d[i:i+4], s[i:i+4])
				continue
			}

			da := uint32(d[i+3])
			outA := sa*255 + da*(255-sa) // alpha scaled by 255
			for c := 0; c < 3; c++ {
				v := uint32(s[i+c])*sa*255 + uint32(d[i+c])*da*(255-sa)
				d[i+c] = uint8((v + outA/2) / outA)
			}
			d[i+3] = uint8((outA + 127) / 255)
		}
	}
}

// hasAlphaChannel reports whether the decoded image carries alpha at all.
func hasAlphaChannel(img image.Image) bool {
	switch m := img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}
	return true
}

// flattenRGB drops the alpha channel, keeping the straight RGB values.
func flattenRGB(img *image.NRGBA) *image.NRGBA {
	res := imaging.Clone(img)
	for i := 3; i < len(res.Pix); i += 4 {
		res.Pix[i] = 0xff
	}
	return res
}
