package textextract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/collateral-classifier/internal/ocr"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
)

// TextLayer gives access to the embedded (selectable) text of a document.
type TextLayer interface {
	// PageText returns the embedded text of the 1-based page, or "" when it has none.
	PageText(index int) string
}

// staticLayer holds per-page text extracted up front.
type staticLayer struct {
	pages  []string
	method string
}

func (l *staticLayer) PageText(index int) string {
	if index < 1 || index > len(l.pages) {
		return ""
	}
	return l.pages[index-1]
}

// Method reports which reader produced the layer: "pdf-text" | "pdftotext" | "none".
func (l *staticLayer) Method() string { return l.method }

// LayerOpener reads the embedded text layer of a rasterized document.
type LayerOpener struct {
	pdftotext string
	password  string
	runner    ocr.Runner
	logger    *slog.Logger
}

// NewLayerOpener returns an opener; password unlocks encrypted uploads.
func NewLayerOpener(pdftotext, password string, runner ocr.Runner, logger *slog.Logger) *LayerOpener {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	return &LayerOpener{pdftotext: pdftotext, password: password, runner: runner, logger: logger}
}

// Open reads the text layer once per document. It never fails: a document
// neither reader can open yields an empty layer and every page goes to OCR.
func (o *LayerOpener) Open(ctx context.Context, doc *rasterize.Document) TextLayer {
	pages, err := readPlainText(doc.PDF, doc.PageCount, o.password)
	if err == nil {
		return &staticLayer{pages: pages, method: "pdf-text"}
	}
	o.logger.Debug("pdf reader failed, falling back to pdftotext", "filename", doc.Filename, "error", err)

	if doc.SourcePath != "" {
		pages, err = o.pdfToText(ctx, doc.SourcePath, doc.PageCount)
		if err == nil {
			return &staticLayer{pages: pages, method: "pdftotext"}
		}
		o.logger.Warn("pdftotext failed, relying on ocr", "filename", doc.Filename, "error", err)
	}
	return &staticLayer{pages: make([]string, doc.PageCount), method: "none"}
}

// readPlainText extracts every page with the pure-Go reader.
// Pages that fail to decode come back as "".
func readPlainText(data []byte, pageCount int, password string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	r, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), passwordOnce(password))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	if pageCount > 0 && n < pageCount {
		return nil, fmt.Errorf("pdf reader saw %d of %d pages", n, pageCount)
	}
	if pageCount <= 0 {
		pageCount = n
	}
	pages = make([]string, pageCount)
	for i := 1; i <= pageCount; i++ {
		pages[i-1] = pagePlainText(r, i)
	}
	return pages, nil
}

// passwordOnce offers password a single time; the reader retries until it gets "".
func passwordOnce(password string) func() string {
	if password == "" {
		return nil
	}
	tried := false
	return func() string {
		if tried {
			return ""
		}
		tried = true
		return password
	}
}

func pagePlainText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func (o *LayerOpener) pdfToText(ctx context.Context, path string, pageCount int) ([]string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-upw pw] <path> -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if o.password != "" {
		args = append(args, "-upw", o.password)
	}
	args = append(args, path, "-")
	out, errb, err := o.runner.Run(ctx, o.pdftotext, args...)
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, ocr.Truncate(string(errb), 512))
	}
	// A form-feed \f terminates each page
	parts := strings.Split(string(out), "\f")
	pages := make([]string, pageCount)
	for i := 0; i < pageCount && i < len(parts); i++ {
		pages[i] = parts[i]
	}
	return pages, nil
}
