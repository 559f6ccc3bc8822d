package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Engine turns one rasterized page image into text.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Config selects and tunes the OCR engine.
type Config struct {
	Engine    string // "tesseract" (CLI, default) | "gosseract" (cgo, build tag)
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "eng"
	TessdataDir string
	DPI         int

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// MaxImageDimension downsizes page images whose longest side exceeds it. 0 disables.
	MaxImageDimension int

	// MaxInFlight caps concurrent in-process recognitions, including ones
	// still running after their caller timed out. Defaults to GOMAXPROCS.
	MaxInFlight int
}

func (c Config) withDefaults() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = runtime.GOMAXPROCS(0)
	}
	return c
}

// NewEngine builds the configured engine, wrapped with pre-processing and normalization.
func NewEngine(cfg Config, runner Runner, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	var base Engine
	switch strings.ToLower(cfg.Engine) {
	case "", "tesseract":
		base = NewTesseract(cfg, runner, logger)
	case "gosseract":
		g, err := newGosseract(cfg)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}

	var pre *Preprocessor
	if cfg.MaxImageDimension > 0 {
		pre = NewPreprocessor(cfg.MaxImageDimension, logger)
	}
	return &normalizingEngine{base: base, pre: pre}, nil
}

type normalizingEngine struct {
	base Engine
	pre  *Preprocessor
}

func (e *normalizingEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	path := imagePath
	if e.pre != nil {
		p, cleanup, err := e.pre.Prepare(imagePath)
		if err != nil {
			return "", fmt.Errorf("preprocess %s: %w", imagePath, err)
		}
		defer cleanup()
		path = p
	}
	txt, err := e.base.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return Normalize(txt), nil
}
