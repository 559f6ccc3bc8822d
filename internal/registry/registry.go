// Package registry holds the process-wide classification pipeline.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/model"
)

// loadTimeout bounds fetching a remote (gs://) artifact.
const loadTimeout = time.Minute

// Predictor is the part of a pipeline the classifier needs.
type Predictor interface {
	Classify(text string) (label string, confidence float64, err error)
	Metadata() model.Metadata
}

// Status is the model metadata surface.
type Status struct {
	Loaded    bool            `json:"model_loaded"`
	Metadata  *model.Metadata `json:"-"`
	LoadError string          `json:"load_error,omitempty"`
}

// Registry is written once by Load and read-only afterwards.
type Registry struct {
	path      string
	predictor Predictor
	loadErr   error
}

// Load reads the artifact at path. It never fails: a load error is recorded
// and every later Pipeline call reports it as ErrModelUnavailable.
func Load(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	p, err := model.LoadContext(ctx, path)
	if err != nil {
		r.loadErr = err
		logger.Error("failed to load classification model", "path", path, "error", err)
		return r
	}
	r.predictor = p

	meta := p.Metadata()
	logger.Info("classification model loaded",
		"path", path,
		"model_type", meta.ModelType,
		"accuracy", meta.Accuracy,
		"labels", len(meta.SupportedLabels),
	)
	if meta.MinAccuracyThreshold > 0 && meta.Accuracy < meta.MinAccuracyThreshold {
		logger.Warn("model accuracy below its training threshold",
			"accuracy", meta.Accuracy,
			"min_accuracy_threshold", meta.MinAccuracyThreshold,
		)
	}
	return r
}

// New wraps an already built predictor. Used by tests and embedders.
func New(p Predictor) *Registry {
	if p == nil {
		return &Registry{loadErr: fmt.Errorf("no predictor")}
	}
	return &Registry{predictor: p}
}

// Unavailable returns a registry that reports err on every call.
func Unavailable(err error) *Registry {
	return &Registry{loadErr: err}
}

func (r *Registry) Path() string { return r.path }

// Pipeline returns the loaded predictor or ErrModelUnavailable.
func (r *Registry) Pipeline() (Predictor, error) {
	if r == nil {
		return nil, common.ErrModelUnavailable
	}
	if r.predictor == nil {
		if r.loadErr != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrModelUnavailable, r.loadErr)
		}
		return nil, common.ErrModelUnavailable
	}
	return r.predictor, nil
}

func (r *Registry) Loaded() bool {
	return r != nil && r.predictor != nil
}

func (r *Registry) Status() Status {
	if !r.Loaded() {
		s := Status{}
		if r != nil && r.loadErr != nil {
			s.LoadError = r.loadErr.Error()
		}
		return s
	}
	meta := r.predictor.Metadata()
	return Status{Loaded: true, Metadata: &meta}
}
