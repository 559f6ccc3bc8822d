// Package model loads a serialized text classification pipeline (TF-IDF
// vectorizer + linear classifier) and runs it on page text.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

const (
	TypeLogisticRegression = "logistic_regression"
	TypeLinearSVC          = "linear_svc"
)

// Artifact is the on-disk form of a trained pipeline.
type Artifact struct {
	ModelType            string   `json:"model_type"`
	Labels               []string `json:"labels"`
	Accuracy             float64  `json:"accuracy"`
	MinAccuracyThreshold float64  `json:"min_accuracy_threshold"`
	TrainingSamples      int      `json:"training_samples"`
	TestSamples          int      `json:"test_samples"`
	TrainedAt            string   `json:"trained_at,omitempty"`

	Vectorizer VectorizerParams `json:"vectorizer"`
	Classifier ClassifierParams `json:"classifier"`
}

type VectorizerParams struct {
	Lowercase   bool           `json:"lowercase"`
	NgramRange  []int          `json:"ngram_range,omitempty"` // [min, max], default [1, 1]
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm,omitempty"` // "l2" (default) | "none"
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

// ClassifierParams holds one coefficient row per label. A binary model may
// carry a single row scoring Labels[1] against Labels[0].
type ClassifierParams struct {
	Coef        [][]float64 `json:"coef"`
	Intercept   []float64   `json:"intercept"`
	Temperature float64     `json:"temperature,omitempty"` // linear_svc softmax calibration, default 1
}

// Metadata is the public description of a loaded pipeline.
type Metadata struct {
	ModelType            string   `json:"model_type"`
	Accuracy             float64  `json:"accuracy"`
	TrainingSamples      int      `json:"training_samples"`
	TestSamples          int      `json:"test_samples"`
	SupportedLabels      []string `json:"supported_labels"`
	MinAccuracyThreshold float64  `json:"min_accuracy_threshold"`
}

func (a *Artifact) Metadata() Metadata {
	return Metadata{
		ModelType:            a.ModelType,
		Accuracy:             a.Accuracy,
		TrainingSamples:      a.TrainingSamples,
		TestSamples:          a.TestSamples,
		SupportedLabels:      append([]string(nil), a.Labels...),
		MinAccuracyThreshold: a.MinAccuracyThreshold,
	}
}

// Load reads and compiles the artifact at path.
func Load(path string) (*Pipeline, error) {
	return LoadContext(context.Background(), path)
}

// LoadContext is Load for paths that may be remote (gs://bucket/object).
func LoadContext(ctx context.Context, path string) (*Pipeline, error) {
	data, err := ReadArtifact(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", common.ErrModelLoad, path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates data against the artifact schema and compiles it.
func Parse(data []byte) (*Pipeline, error) {
	if err := ValidateJSONAgainstSchema(BuildArtifactJSONSchema(), data); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelLoad, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %w", common.ErrModelLoad, err)
	}
	if err := a.canonicalizeLabels(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelLoad, err)
	}
	return Compile(&a)
}

// canonicalizeLabels rewrites training-time label spellings ("deed_of_trust",
// "promissory note") onto the document vocabulary. Unknown labels are rejected.
func (a *Artifact) canonicalizeLabels() error {
	var errs []error
	for i, raw := range a.Labels {
		l, ok := constants.Canonicalize(raw)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("label %q is not a known document type", raw))
		case l == constants.Unlabeled:
			errs = append(errs, fmt.Errorf("label %q is reserved", raw))
		default:
			a.Labels[i] = string(l)
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the artifact's parameters fit together.
func (a *Artifact) Validate() error {
	var errs []error
	switch a.ModelType {
	case TypeLogisticRegression, TypeLinearSVC:
	default:
		errs = append(errs, fmt.Errorf("unknown model_type %q", a.ModelType))
	}

	if len(a.Labels) < 2 {
		errs = append(errs, errors.New("at least two labels are required"))
	}
	seen := make(map[string]bool, len(a.Labels))
	for _, l := range a.Labels {
		if l == "" {
			errs = append(errs, errors.New("empty label"))
		}
		if l == string(constants.Unlabeled) {
			errs = append(errs, fmt.Errorf("label %q is reserved", l))
		}
		if seen[l] {
			errs = append(errs, fmt.Errorf("duplicate label %q", l))
		}
		seen[l] = true
	}

	v := a.Vectorizer
	nFeatures := len(v.IDF)
	if len(v.Vocabulary) != nFeatures {
		errs = append(errs, fmt.Errorf("vocabulary has %d terms but idf has %d weights", len(v.Vocabulary), nFeatures))
	}
	cols := make(map[int]string, len(v.Vocabulary))
	for term, col := range v.Vocabulary {
		if col < 0 || col >= nFeatures {
			errs = append(errs, fmt.Errorf("term %q maps to column %d outside [0,%d)", term, col, nFeatures))
		}
		if other, dup := cols[col]; dup {
			errs = append(errs, fmt.Errorf("terms %q and %q share column %d", other, term, col))
		}
		cols[col] = term
	}
	if lo, hi := v.ngrams(); lo < 1 || hi < lo {
		errs = append(errs, fmt.Errorf("invalid ngram_range %v", v.NgramRange))
	}
	switch v.Norm {
	case "", "l2", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown norm %q", v.Norm))
	}
	if !allFinite(v.IDF) {
		errs = append(errs, errors.New("idf contains non-finite values"))
	}

	c := a.Classifier
	rows := len(c.Coef)
	binary := len(a.Labels) == 2 && rows == 1
	if rows != len(a.Labels) && !binary {
		errs = append(errs, fmt.Errorf("coef has %d rows for %d labels", rows, len(a.Labels)))
	}
	if len(c.Intercept) != rows {
		errs = append(errs, fmt.Errorf("intercept has %d values for %d coef rows", len(c.Intercept), rows))
	}
	for i, row := range c.Coef {
		if len(row) != nFeatures {
			errs = append(errs, fmt.Errorf("coef row %d has %d values for %d features", i, len(row), nFeatures))
		}
		if !allFinite(row) {
			errs = append(errs, fmt.Errorf("coef row %d contains non-finite values", i))
		}
	}
	if !allFinite(c.Intercept) {
		errs = append(errs, errors.New("intercept contains non-finite values"))
	}
	if c.Temperature < 0 || math.IsNaN(c.Temperature) || math.IsInf(c.Temperature, 0) {
		errs = append(errs, fmt.Errorf("invalid temperature %v", c.Temperature))
	}
	return errors.Join(errs...)
}

func (v VectorizerParams) ngrams() (int, int) {
	if len(v.NgramRange) == 0 {
		return 1, 1
	}
	if len(v.NgramRange) != 2 {
		return 0, 0
	}
	return v.NgramRange[0], v.NgramRange[1]
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
