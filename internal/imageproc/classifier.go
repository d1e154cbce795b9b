package imageproc

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ColorMode is the color mode the final encode targets.
type ColorMode int

const (
	ModeRGB ColorMode = iota
	ModeRGBA
)

func (m ColorMode) String() string {
	if m == ModeRGBA {
		return "RGBA"
	}
	return "RGB"
}

// WEBP extends imaging's formats: imaging can decode it through the registered x/image
// decoder but has no encoder for it, so the engine encodes it itself.
const WEBP = imaging.BMP + 1

// Capability describes what a file extension can carry.
type Capability struct {
	Format       imaging.Format
	AlphaCapable bool
	Animatable   bool
}

// CapabilityTable maps a lower-cased extension (with the dot) to its capability.
// Build it once with NewCapabilityTable and share it: it is never modified after creation.
type CapabilityTable struct {
	caps map[string]Capability
}

// NewCapabilityTable returns the table of base-image extensions the engine can both decode
// and encode back in the same format.
func NewCapabilityTable() *CapabilityTable {
	return &CapabilityTable{caps: map[string]Capability{
		".png":  {Format: imaging.PNG, AlphaCapable: true, Animatable: true},
		".apng": {Format: imaging.PNG, AlphaCapable: true, Animatable: true},
		".webp": {Format: WEBP, AlphaCapable: true},
		".tif":  {Format: imaging.TIFF, AlphaCapable: true},
		".tiff": {Format: imaging.TIFF, AlphaCapable: true},
		".jpg":  {Format: imaging.JPEG},
		".jpeg": {Format: imaging.JPEG},
		".bmp":  {Format: imaging.BMP},
		".gif":  {Format: imaging.GIF, Animatable: true},
	}}
}

// Lookup returns the capability for ext. ext is case-insensitive and may omit the dot.
func (t *CapabilityTable) Lookup(ext string) (Capability, bool) {
	c, ok := t.caps[normalizeExt(ext)]
	return c, ok
}

// Extensions lists the supported extensions.
func (t *CapabilityTable) Extensions() []string {
	res := make([]string, 0, len(t.caps))
	for k := range t.caps {
		res = append(res, k)
	}
	return res
}

// Classification is the Classifier verdict for one asset.
type Classification struct {
	Ext          string
	Format       imaging.Format
	AlphaCapable bool
	Animated     bool
	// Indexed is set for palette-only animated outputs (GIF).
	Indexed bool
	Target  ColorMode
}

type Classifier struct {
	table *CapabilityTable
}

func NewClassifier(table *CapabilityTable) *Classifier {
	return &Classifier{table: table}
}

// Supports reports whether a file with this name can be processed.
func (c *Classifier) Supports(name string) bool {
	_, ok := c.table.Lookup(filepath.Ext(name))
	return ok
}

// Capability returns the table entry for ext or an ErrUnsupportedFormat failure.
func (c *Classifier) Capability(ext string) (Capability, error) {
	capab, ok := c.table.Lookup(ext)
	if !ok {
		return Capability{}, newProcessError(ErrUnsupportedFormat, StageClassify, ext, nil)
	}
	return capab, nil
}

// Classify decides alpha capability and the target encode mode from the extension and the
// decoded asset's animation flag. An animation flag on a non-animatable extension is ignored.
func (c *Classifier) Classify(ext string, animated bool) (Classification, error) {
	capab, err := c.Capability(ext)
	if err != nil {
		return Classification{}, err
	}

	res := Classification{
		Ext:          normalizeExt(ext),
		Format:       capab.Format,
		AlphaCapable: capab.AlphaCapable,
		Animated:     animated && capab.Animatable,
	}

	// animated GIF keeps binary transparency through the reserved palette index
	if res.Animated && capab.Format == imaging.GIF {
		res.AlphaCapable = true
		res.Indexed = true
	}

	if res.AlphaCapable {
		res.Target = ModeRGBA
	} else {
		res.Target = ModeRGB
	}
	return res, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
