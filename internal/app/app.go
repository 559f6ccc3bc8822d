// Package app assembles the classification pipeline from configuration.
package app

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/export"
	"github.com/joseph-ayodele/collateral-classifier/internal/ocr"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
	repo "github.com/joseph-ayodele/collateral-classifier/internal/repository"
	"github.com/joseph-ayodele/collateral-classifier/internal/server"
	"github.com/joseph-ayodele/collateral-classifier/internal/textextract"
)

type App struct {
	Config     *common.Config
	Models     *registry.Registry
	Classifier *classifier.Classifier
	Exporter   *export.Service

	// Store and Jobs are nil when no database is configured.
	Store *repo.DB
	Jobs  repo.ClassificationJobRepository

	logger *slog.Logger
}

// Build loads the model and wires the pipeline. A missing model is not an
// error: the registry reports it and classification fails with
// ErrModelUnavailable. The audit store is opened only when withStore is set.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, withStore bool) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Exporter: export.NewService(logger), logger: logger}

	a.Models = registry.Load(cfg.Model.Path, logger.With("component", "registry"))

	runner := ocr.NewExecRunner(logger.With("component", "exec"))
	engine, err := ocr.NewEngine(ocr.Config{
		Engine:            cfg.OCR.Engine,
		Tesseract:         cfg.OCR.Tesseract,
		Language:          cfg.OCR.Language,
		TessdataDir:       cfg.OCR.TessdataDir,
		DPI:               cfg.OCR.DPI,
		PSM:               cfg.OCR.PSM,
		OEM:               cfg.OCR.OEM,
		MaxImageDimension: cfg.OCR.MaxImageDimension,
		MaxInFlight:       cfg.Classifier.Workers,
	}, runner, logger.With("component", "ocr"))
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid ocr configuration", err)
	}

	raster := rasterize.New(rasterize.Config{
		Pdftoppm: cfg.OCR.Pdftoppm,
		DPI:      cfg.OCR.DPI,
		MaxPages: cfg.Classifier.MaxPages,
		Password: cfg.OCR.PDFPassword,
	}, runner, logger.With("component", "rasterize"))
	layers := textextract.NewLayerOpener(cfg.OCR.Pdftotext, cfg.OCR.PDFPassword, runner, logger.With("component", "textlayer"))
	pages := textextract.NewExtractor(textextract.Config{
		MinTextLength: cfg.OCR.MinTextLength,
		PageTimeout:   cfg.OCR.PageTimeout,
	}, engine, logger.With("component", "extract"))

	opts := []classifier.Option{
		classifier.WithThreshold(cfg.Classifier.ConfidenceThreshold),
		classifier.WithWorkers(cfg.Classifier.Workers),
		classifier.WithTimeout(cfg.Classifier.RequestTimeout),
	}
	if withStore {
		a.Store, a.Jobs, err = server.ConnectStore(ctx, cfg.Database, logger.With("component", "store"))
		if err != nil {
			return nil, err
		}
		if a.Jobs != nil {
			opts = append(opts, classifier.WithJobRecorder(a.Jobs))
		}
	}

	a.Classifier = classifier.New(a.Models, raster, layers, pages, logger.With("component", "classifier"), opts...)
	return a, nil
}

// MaxUploadBytes is the configured upload cap.
func (a *App) MaxUploadBytes() int64 {
	return int64(a.Config.Server.MaxUploadMB) << 20
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
		a.Store = nil
	}
}
