// Package imageproc is the watermark compositing engine: it overlays a watermark image on a
// static or animated base image, keeping the base's fully transparent regions untouched.
// It also renders watermark previews.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// artifactSuffix is the single naming convention of produced files.
const artifactSuffix = "_watermarked"

// Engine holds only immutable data, so one instance may serve concurrent calls as long as
// they write to distinct output folders.
type Engine struct {
	classifier *Classifier
	quantizer  kmeansQuantizer
}

func NewEngine(table *CapabilityTable) *Engine {
	return &Engine{
		classifier: NewClassifier(table),
		quantizer:  newQuantizer(),
	}
}

func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

// OutputPath returns where ProcessImages writes the result for basePath.
func OutputPath(outputDir, basePath string) string {
	ext := filepath.Ext(basePath)
	stem := strings.TrimSuffix(filepath.Base(basePath), ext)
	return filepath.Join(outputDir, stem+artifactSuffix+strings.ToLower(ext))
}

// ProcessImages watermarks the image at basePath with the image at overlayPath and writes
// the result into outputDir, which is created if needed. opacity must be in (0, 1].
// It returns the output path or a *ProcessError.
func (e *Engine) ProcessImages(basePath, overlayPath, outputDir string, opacity float64) (string, error) {
	if !(opacity > 0 && opacity <= 1) {
		return "", newProcessError(ErrInvalidOpacity, StageValidate, "", fmt.Errorf("got %v", opacity))
	}
	if err := mustExist(basePath); err != nil {
		return "", err
	}
	ext := filepath.Ext(basePath)
	capab, err := e.classifier.Capability(ext)
	if err != nil {
		return "", newProcessError(ErrUnsupportedFormat, StageClassify, basePath, nil)
	}
	if err := mustExist(overlayPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", newProcessError(ErrOutputUnwritable, StagePrepare, outputDir, err)
	}

	base, err := decodeBase(basePath, capab)
	if err != nil {
		return "", err
	}

	cls, err := e.classifier.Classify(ext, base.animated())
	if err != nil {
		return "", err
	}

	overlay, err := loadOverlay(overlayPath)
	if err != nil {
		return "", newProcessError(ErrDecodeFailure, StageDecode, overlayPath, err)
	}
	w, h := base.size()
	overlay = fitOverlay(overlay, w, h)

	var encode func(io.Writer) error
	if cls.Animated {
		seq, err := CompositeSequence(base.seq, overlay, opacity)
		if err != nil {
			return "", newProcessError(ErrEmptySequence, StageComposite, basePath, err)
		}
		encode = func(w io.Writer) error { return encodeSequence(w, seq, cls, e.quantizer) }
	} else {
		frame := Composite(base.still, overlay, opacity)
		encode = func(w io.Writer) error { return encodeStill(w, frame, cls, e.quantizer) }
	}

	out := OutputPath(outputDir, basePath)
	if err := writeArtifact(out, encode); err != nil {
		return "", err
	}
	return out, nil
}

func mustExist(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return newProcessError(ErrMissingInput, StageValidate, path, err)
	}
	if !info.Mode().IsRegular() {
		return newProcessError(ErrMissingInput, StageValidate, path, fs.ErrInvalid)
	}
	return nil
}

// baseAsset is a decoded base image: either a still or a sequence of at least two frames.
type baseAsset struct {
	still image.Image
	seq   *Sequence
}

func (a *baseAsset) animated() bool {
	return a.seq != nil
}

func (a *baseAsset) size() (int, int) {
	if a.seq != nil {
		return a.seq.Width, a.seq.Height
	}
	return a.still.Bounds().Dx(), a.still.Bounds().Dy()
}

func decodeBase(path string, capab Capability) (*baseAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newProcessError(ErrDecodeFailure, StageDecode, path, err)
	}

	var seq *Sequence
	switch {
	case capab.Format == imaging.GIF:
		seq, err = decodeGIFSequence(data)
	case capab.Animatable && isAPNG(data):
		seq, err = decodeAPNGSequence(data)
	default:
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, newProcessError(ErrDecodeFailure, StageDecode, path, err)
		}
		return &baseAsset{still: img}, nil
	}

	if err != nil {
		if errors.Is(err, ErrEmptySequence) {
			return nil, newProcessError(ErrEmptySequence, StageDecode, path, nil)
		}
		return nil, newProcessError(ErrDecodeFailure, StageDecode, path, err)
	}
	if len(seq.Frames) == 1 {
		return &baseAsset{still: seq.Frames[0]}, nil
	}
	return &baseAsset{seq: seq}, nil
}
