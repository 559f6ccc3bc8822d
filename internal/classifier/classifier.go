// Package classifier runs the page classification pipeline over a whole document.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
	"github.com/joseph-ayodele/collateral-classifier/internal/textextract"
)

type Classifier struct {
	models ModelSource
	raster Rasterizer
	layers LayerOpener
	pages  PageExtractor
	jobs   JobRecorder
	logger *slog.Logger

	threshold float64
	workers   int
	timeout   time.Duration
}

func New(models ModelSource, raster Rasterizer, layers LayerOpener, pages PageExtractor, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		models:    models,
		raster:    raster,
		layers:    layers,
		pages:     pages,
		logger:    logger,
		threshold: constants.DefaultConfidenceThreshold,
		workers:   4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Classifier) Threshold() float64 { return c.threshold }

// ClassifyDocument returns one prediction per page, in page order, or an
// error. It never returns a partial prediction list.
func (c *Classifier) ClassifyDocument(ctx context.Context, filename string, pdf []byte, opts ...RequestOption) (*DocumentResult, error) {
	req := request{threshold: c.threshold}
	for _, o := range opts {
		o(&req)
	}

	start := time.Now()
	logger := c.logger.With("filename", filename)
	if id := common.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	pred, err := c.models.Pipeline()
	if err != nil {
		logger.Warn("classification rejected, model unavailable", "error", err)
		return nil, err
	}
	modelType := pred.Metadata().ModelType

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	sum := sha256.Sum256(pdf)
	result := &DocumentResult{
		Filename:      filename,
		ContentSHA256: hex.EncodeToString(sum[:]),
		Threshold:     req.threshold,
		ModelType:     modelType,
	}
	job := c.startJob(ctx, logger, result, int64(len(pdf)))

	predictions, err := c.classifyPages(ctx, logger, pred, filename, pdf, req.threshold)
	if err != nil {
		c.failJob(ctx, logger, job, err)
		logger.Error("document classification failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	result.Success = true
	result.PageCount = len(predictions)
	result.Predictions = predictions
	c.finishJob(ctx, logger, job, result)

	logger.Info("document classified",
		"pages", result.PageCount,
		"unlabeled", countUnlabeled(predictions),
		"threshold", req.threshold,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *Classifier) classifyPages(ctx context.Context, logger *slog.Logger, pred registry.Predictor, filename string, pdf []byte, threshold float64) ([]Prediction, error) {
	doc, err := c.raster.Rasterize(ctx, filename, pdf)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("failed to remove rasterized pages", "error", err)
		}
	}()
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, common.ErrEmptyDocument)
	}

	layer := c.layers.Open(ctx, doc)

	out := make([]Prediction, len(doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, page := range doc.Pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pt := c.pages.ExtractPage(gctx, layer, page)
			p, err := classifyPage(pred, pt, threshold)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// OCR absorbs per-page deadlines; a cancelled request must still fail as a whole.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func classifyPage(pred registry.Predictor, pt textextract.PageText, threshold float64) (Prediction, error) {
	label, conf, err := pred.Classify(pt.Text)
	if err != nil {
		if !errors.Is(err, common.ErrModelInvocation) {
			err = fmt.Errorf("%w: %w", common.ErrModelInvocation, err)
		}
		return Prediction{}, err
	}
	if math.IsNaN(conf) {
		return Prediction{}, fmt.Errorf("%w: confidence is NaN", common.ErrModelInvocation)
	}
	conf = math.Max(0, math.Min(1, conf))

	p := Prediction{
		Page:       pt.Index,
		Label:      label,
		Confidence: conf,
		TextLength: pt.Length,
		ModelLabel: label,
		TextSource: pt.Source,
	}
	if conf < threshold {
		p.Label = string(constants.Unlabeled)
	}
	return p, nil
}

func countUnlabeled(preds []Prediction) int {
	n := 0
	for _, p := range preds {
		if p.Unlabeled() {
			n++
		}
	}
	return n
}

// Recorder failures are logged and never fail the request.

func (c *Classifier) startJob(ctx context.Context, logger *slog.Logger, res *DocumentResult, size int64) *entity.ClassificationJob {
	if c.jobs == nil {
		return nil
	}
	job := &entity.ClassificationJob{
		Filename:      res.Filename,
		ContentSHA256: res.ContentSHA256,
		SizeBytes:     size,
		Threshold:     res.Threshold,
		ModelType:     res.ModelType,
	}
	if err := c.jobs.Start(ctx, job); err != nil {
		logger.Warn("failed to record classification job", "error", err)
		return nil
	}
	res.JobID = job.ID.String()
	return job
}

func (c *Classifier) finishJob(ctx context.Context, logger *slog.Logger, job *entity.ClassificationJob, res *DocumentResult) {
	if job == nil {
		return
	}
	b, err := json.Marshal(res.Predictions)
	if err != nil {
		logger.Warn("failed to encode predictions for job", "job_id", job.ID, "error", err)
		return
	}
	if err := c.jobs.Finish(context.WithoutCancel(ctx), job.ID, res.PageCount, res.ModelType, b); err != nil {
		logger.Warn("failed to finish classification job", "job_id", job.ID, "error", err)
	}
}

func (c *Classifier) failJob(ctx context.Context, logger *slog.Logger, job *entity.ClassificationJob, cause error) {
	if job == nil {
		return
	}
	if err := c.jobs.Fail(context.WithoutCancel(ctx), job.ID, cause.Error()); err != nil {
		logger.Warn("failed to fail classification job", "job_id", job.ID, "error", err)
	}
}
