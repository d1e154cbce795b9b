package imageproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompositeTransparentBaseUnchanged(t *testing.T) {
	base := solidImage(10, 10, color.NRGBA{})
	overlay := solidImage(10, 10, color.NRGBA{R: 255, G: 10, B: 10, A: 255})

	for _, opacity := range []float64{0.01, 0.15, 0.5, 1} {
		got := Composite(base, overlay, opacity)
		require.Equal(t, base.Pix, got.Pix, "opacity %v", opacity)
	}
}

func TestCompositeFullOpacity(t *testing.T) {
	base := solidImage(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	overlay := solidImage(8, 8, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	got := Composite(base, overlay, 1)
	for i := 0; i < len(got.Pix); i += 4 {
		require.Equal(t, []uint8{200, 100, 50, 255}, got.Pix[i:i+4])
	}
}

func TestCompositeLowOpacityBarelyChangesBase(t *testing.T) {
	base := solidImage(8, 8, color.NRGBA{R: 10, G: 120, B: 250, A: 255})
	overlay := solidImage(8, 8, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	got := Composite(base, overlay, 0.01)
	for i := 0; i < len(got.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			diff := int(got.Pix[i+c]) - int(base.Pix[i+c])
			require.LessOrEqual(t, diff, 3)
			require.GreaterOrEqual(t, diff, -3)
		}
		require.Equal(t, uint8(255), got.Pix[i+3])
	}
}

func TestCompositeMaskedRegionsOnly(t *testing.T) {
	// left half transparent, right half opaque
	base := solidImage(4, 2, color.NRGBA{R: 50, G: 50, B: 50, A: 255})
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			base.SetNRGBA(x, y, color.NRGBA{})
		}
	}
	overlay := solidImage(4, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	got := Composite(base, overlay, 1)
	require.Equal(t, color.NRGBA{}, got.NRGBAAt(0, 0))
	require.Equal(t, color.NRGBA{}, got.NRGBAAt(1, 1))
	require.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, got.NRGBAAt(2, 0))
	require.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, got.NRGBAAt(3, 1))
}

func TestCompositeSemiTransparentBase(t *testing.T) {
	base := solidImage(2, 2, color.NRGBA{R: 0, G: 0, B: 255, A: 1})
	overlay := solidImage(2, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	got := Composite(base, overlay, 0.5)
	px := got.NRGBAAt(0, 0)
	require.Greater(t, px.A, uint8(1), "only alpha exactly zero is masked")
	require.Greater(t, px.R, px.B)
}

func TestCompositeBaseWithoutAlpha(t *testing.T) {
	base := image.NewYCbCr(image.Rect(0, 0, 6, 4), image.YCbCrSubsampleRatio444)
	overlay := solidImage(3, 3, color.NRGBA{R: 255, A: 200})

	require.NotPanics(t, func() {
		got := Composite(base, overlay, 0.5)
		require.Equal(t, image.Rect(0, 0, 6, 4), got.Bounds())
	})

	gray := image.NewGray(image.Rect(0, 0, 5, 5))
	require.NotPanics(t, func() {
		got := Composite(gray, overlay, 1)
		require.Equal(t, 5, got.Bounds().Dx())
	})
}

func TestCompositeDoesNotMutateInputs(t *testing.T) {
	base := solidImage(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	base.SetNRGBA(0, 0, color.NRGBA{})
	overlay := solidImage(5, 5, color.NRGBA{R: 9, G: 8, B: 7, A: 100})

	basePix := append([]uint8(nil), base.Pix...)
	overlayPix := append([]uint8(nil), overlay.Pix...)

	_ = Composite(base, overlay, 0.7)
	require.Equal(t, basePix, base.Pix)
	require.Equal(t, overlayPix, overlay.Pix)
}

func TestCompositeOutputMatchesBaseSize(t *testing.T) {
	base := solidImage(500, 500, color.NRGBA{R: 10, G: 10, B: 10, A: 255})

	for _, size := range []image.Point{{1, 1}, {50, 20}, {500, 500}, {1200, 900}} {
		overlay := solidImage(size.X, size.Y, color.NRGBA{R: 255, A: 255})
		got := Composite(base, overlay, 0.3)
		require.Equal(t, image.Rect(0, 0, 500, 500), got.Bounds(), "overlay %v", size)
	}
}

func TestOpacityTable(t *testing.T) {
	lut := opacityTable(0.5)
	require.Equal(t, uint8(0), lut[0])
	require.Equal(t, uint8(0), lut[1])
	require.Equal(t, uint8(127), lut[255])

	full := opacityTable(1)
	for a := range full {
		require.Equal(t, uint8(a), full[a])
	}
}

func TestHasAlphaChannel(t *testing.T) {
	opaque := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black, color.White})
	withAlpha := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black, color.Transparent})

	require.False(t, hasAlphaChannel(image.NewYCbCr(image.Rect(0, 0, 1, 1), image.YCbCrSubsampleRatio420)))
	require.False(t, hasAlphaChannel(image.NewGray(image.Rect(0, 0, 1, 1))))
	require.False(t, hasAlphaChannel(opaque))
	require.True(t, hasAlphaChannel(withAlpha))
	require.True(t, hasAlphaChannel(image.NewNRGBA(image.Rect(0, 0, 1, 1))))
}
