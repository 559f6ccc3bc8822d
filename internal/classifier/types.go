package classifier

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
	"github.com/joseph-ayodele/collateral-classifier/internal/textextract"
)

// Prediction is the outcome for one page.
type Prediction struct {
	Page       int     `json:"page"`
	Label      string  `json:"predicted_label"`
	Confidence float64 `json:"confidence"`
	TextLength int     `json:"text_length"`

	ModelLabel string               `json:"-"`
	TextSource constants.TextSource `json:"-"`
}

// Unlabeled reports whether the threshold policy discarded the model's label.
func (p Prediction) Unlabeled() bool { return p.Label == string(constants.Unlabeled) }

// DocumentResult is the response for one classified document.
type DocumentResult struct {
	Success       bool         `json:"success"`
	Filename      string       `json:"filename"`
	PageCount     int          `json:"page_count"`
	Predictions   []Prediction `json:"predictions"`
	JobID         string       `json:"job_id,omitempty"`
	ContentSHA256 string       `json:"content_sha256,omitempty"`

	Threshold float64 `json:"-"`
	ModelType string  `json:"-"`
}

// ModelSource hands out the loaded pipeline.
type ModelSource interface {
	Pipeline() (registry.Predictor, error)
}

type Rasterizer interface {
	Rasterize(ctx context.Context, filename string, pdf []byte) (*rasterize.Document, error)
}

type LayerOpener interface {
	Open(ctx context.Context, doc *rasterize.Document) textextract.TextLayer
}

type PageExtractor interface {
	ExtractPage(ctx context.Context, layer textextract.TextLayer, page rasterize.PageImage) textextract.PageText
}

// JobRecorder persists an audit row per request.
type JobRecorder interface {
	Start(ctx context.Context, job *entity.ClassificationJob) error
	Finish(ctx context.Context, id uuid.UUID, pageCount int, modelType string, predictions json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}
