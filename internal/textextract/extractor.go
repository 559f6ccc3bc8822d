// Package textextract decides, page by page, between the embedded text layer and OCR.
package textextract

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/ocr"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
)

// PageText is the text chosen for one page.
type PageText struct {
	Index  int
	Text   string
	Length int // rune count of Text
	Source constants.TextSource

	EmbeddedLength int
	OCRErr         error
	Duration       time.Duration
}

type Config struct {
	MinTextLength int           // embedded text shorter than this (trimmed) goes to OCR
	PageTimeout   time.Duration // bound on a single OCR call; 0 = no bound
}

type Extractor struct {
	cfg    Config
	engine ocr.Engine
	logger *slog.Logger
}

func NewExtractor(cfg Config, engine ocr.Engine, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTextLength < 0 {
		cfg.MinTextLength = constants.DefaultMinTextLength
	}
	return &Extractor{cfg: cfg, engine: engine, logger: logger}
}

// ExtractPage never fails: OCR faults leave the page empty with Source none.
func (e *Extractor) ExtractPage(ctx context.Context, layer TextLayer, page rasterize.PageImage) PageText {
	start := time.Now()
	res := PageText{Index: page.Index}

	embedded := ocr.Normalize(layer.PageText(page.Index))
	res.EmbeddedLength = utf8.RuneCountInString(embedded)
	if embedded != "" && res.EmbeddedLength >= e.cfg.MinTextLength {
		res.Text = embedded
		res.Source = constants.TextSourceEmbedded
		return e.finish(res, start)
	}

	text, err := e.recognize(ctx, page.Path)
	switch {
	case err != nil:
		res.OCRErr = err
		res.Source = constants.TextSourceNone
		e.logger.Warn("ocr failed, page left empty",
			"page", page.Index,
			"path", page.Path,
			"error", err,
		)
	case text == "":
		res.Source = constants.TextSourceNone
	default:
		res.Text = text
		res.Source = constants.TextSourceOCR
	}
	return e.finish(res, start)
}

func (e *Extractor) recognize(ctx context.Context, path string) (string, error) {
	if e.engine == nil {
		return "", errNoEngine
	}
	if e.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PageTimeout)
		defer cancel()
	}
	text, err := e.engine.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return ocr.Normalize(text), nil
}

func (e *Extractor) finish(res PageText, start time.Time) PageText {
	res.Length = utf8.RuneCountInString(res.Text)
	res.Duration = time.Since(start)
	e.logger.Debug("page text extracted",
		"page", res.Index,
		"source", res.Source,
		"text_length", res.Length,
		"embedded_length", res.EmbeddedLength,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}
