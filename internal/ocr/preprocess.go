package ocr

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
)

// Preprocessor downsizes oversized page scans before recognition.
type Preprocessor struct {
	maxDim int
	logger *slog.Logger
}

func NewPreprocessor(maxDim int, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{maxDim: maxDim, logger: logger}
}

// Prepare returns the path to feed the OCR engine and a cleanup func.
// Images within bounds are returned untouched with a no-op cleanup.
func (p *Preprocessor) Prepare(path string) (string, func(), error) {
	noop := func() {}
	f, err := os.Open(path)
	if err != nil {
		return "", noop, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", noop, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	targetW, targetH, ok := ScaledSize(w, h, p.maxDim)
	if !ok {
		return path, noop, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	out, err := os.CreateTemp("", "cc-ocr-*.png")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { _ = os.Remove(out.Name()) }
	if err := png.Encode(out, dst); err != nil {
		_ = out.Close()
		cleanup()
		return "", noop, fmt.Errorf("encode image: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	p.logger.Debug("downscaled page image", "path", path, "from_w", w, "from_h", h, "to_w", targetW, "to_h", targetH)
	return out.Name(), cleanup, nil
}

// ScaledSize fits w×h within maxDim on the longest side, keeping aspect ratio.
// ok is false when no scaling is needed.
func ScaledSize(w, h, maxDim int) (int, int, bool) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h, false
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh, true
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim, true
}
