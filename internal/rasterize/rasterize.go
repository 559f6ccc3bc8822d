// Package rasterize turns PDF bytes into one PNG per page.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/ocr"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home on first use.
	api.DisableConfigDir()
}

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default 300
	MaxPages int    // 0 = no limit
	Password string // user password for encrypted uploads
}

// PageImage is one rendered page on disk.
type PageImage struct {
	Index int // 1-based
	Path  string
}

// Document is a rasterized upload. It owns a temp directory until Close.
type Document struct {
	Filename  string
	PDF       []byte
	PageCount int
	Pages     []PageImage
	// SourcePath is the on-disk copy of PDF inside the temp directory.
	SourcePath string

	dir string
}

// Close removes every rendered page image. Safe to call more than once.
func (d *Document) Close() error {
	if d == nil || d.dir == "" {
		return nil
	}
	dir := d.dir
	d.dir = ""
	return os.RemoveAll(dir)
}

// Dir is the temp directory holding the page images.
func (d *Document) Dir() string { return d.dir }

type Rasterizer struct {
	cfg    Config
	runner ocr.Runner
	logger *slog.Logger
}

func New(cfg Config, runner ocr.Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = constants.DefaultDPI
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// PageCount preflights the PDF with pdfcpu and returns its page count.
func PageCount(pdf []byte, password string) (int, error) {
	if len(pdf) == 0 {
		return 0, fmt.Errorf("empty upload: %w", common.ErrEmptyDocument)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}

	ctx, err := readContext(pdf, conf)
	if err != nil {
		if isPasswordError(err) {
			return 0, common.ConversionErrorf(err, "pdf is encrypted")
		}
		return 0, common.ConversionErrorf(err, "read pdf")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, common.ConversionErrorf(err, "validate pdf")
	}
	if ctx.PageCount <= 0 {
		return 0, fmt.Errorf("pdf has zero pages: %w", common.ErrEmptyDocument)
	}
	return ctx.PageCount, nil
}

// readContext guards against parser panics on hostile input.
func readContext(pdf []byte, conf *model.Configuration) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return api.ReadContext(bytes.NewReader(pdf), conf)
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

// Rasterize renders every page of pdf to PNG at the configured DPI.
// On success the caller owns doc.Close(); on error nothing is left on disk.
func (r *Rasterizer) Rasterize(ctx context.Context, filename string, pdf []byte) (*Document, error) {
	start := time.Now()
	pages, err := PageCount(pdf, r.cfg.Password)
	if err != nil {
		r.logger.Warn("pdf preflight failed", "filename", filename, "error", err)
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "cc-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	doc := &Document{Filename: filename, PDF: pdf, PageCount: pages, dir: tmpDir}
	ok := false
	defer func() {
		if !ok {
			if err := doc.Close(); err != nil {
				r.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
			}
		}
	}()

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	last := pages
	if r.cfg.MaxPages > 0 && last > r.cfg.MaxPages {
		last = r.cfg.MaxPages
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png -f 1 -l N [-upw pw] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png", "-f", "1", "-l", strconv.Itoa(last)}
	if r.cfg.Password != "" {
		args = append(args, "-upw", r.cfg.Password)
	}
	args = append(args, in, prefix)
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rasterize: %w", ctxErr)
		}
		var execErr interface{ ExitCode() int }
		if errors.As(err, &execErr) && execErr.ExitCode() > 0 {
			// pdftoppm ran and rejected the file
			return nil, common.ConversionErrorf(err, "pdftoppm: %s", ocr.Truncate(strings.TrimSpace(string(errb)), 512))
		}
		return nil, fmt.Errorf("run pdftoppm: %w", err)
	}

	images, err := collectPages(prefix)
	if err != nil {
		return nil, err
	}
	if len(images) != last {
		return nil, common.ConversionErrorf(nil, "pdftoppm rendered %d of %d pages", len(images), last)
	}
	doc.Pages = images
	doc.SourcePath = in
	doc.PageCount = last
	ok = true

	r.logger.Debug("rasterized pdf",
		"filename", filename,
		"pages", last,
		"total_pages", pages,
		"dpi", r.cfg.DPI,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

var rePageNum = regexp.MustCompile(`-(\d+)\.png$`)

// collectPages finds prefix-N.png files and orders them by N.
// pdftoppm zero-pads N to the width of the last page number.
func collectPages(prefix string) ([]PageImage, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("glob pages: %w", err)
	}
	pages := make([]PageImage, 0, len(matches))
	for _, m := range matches {
		sub := rePageNum.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		pages = append(pages, PageImage{Index: n, Path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	for i, p := range pages {
		if p.Index != i+1 {
			return nil, common.ConversionErrorf(nil, "missing rendered page %d", i+1)
		}
	}
	return pages, nil
}
