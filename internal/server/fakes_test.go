package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	"github.com/joseph-ayodele/collateral-classifier/internal/model"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
)

type fakeClassifier struct {
	mu       sync.Mutex
	res      *classifier.DocumentResult
	err      error
	calls    int
	filename string
	pdf      []byte
	opts     int
}

func (f *fakeClassifier) ClassifyDocument(_ context.Context, filename string, pdf []byte, opts ...classifier.RequestOption) (*classifier.DocumentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filename = filename
	f.pdf = pdf
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func threePageResult() *classifier.DocumentResult {
	return &classifier.DocumentResult{
		Success:   true,
		Filename:  "loan.pdf",
		PageCount: 3,
		Predictions: []classifier.Prediction{
			{Page: 1, Label: "Note", Confidence: 0.97, TextLength: 812},
			{Page: 2, Label: "UNLABELED", Confidence: 0.41, TextLength: 0},
			{Page: 3, Label: "Mortgage", Confidence: 0.88, TextLength: 1430},
		},
		Threshold: 0.85,
		ModelType: "logistic_regression",
	}
}

type fakeModels struct{ st registry.Status }

func (f fakeModels) Status() registry.Status { return f.st }

func loadedModels() fakeModels {
	return fakeModels{st: registry.Status{
		Loaded: true,
		Metadata: &model.Metadata{
			ModelType:            "logistic_regression",
			Accuracy:             0.912,
			TrainingSamples:      1240,
			TestSamples:          310,
			SupportedLabels:      []string{"Note", "Mortgage", "Rider"},
			MinAccuracyThreshold: 0.8,
		},
	}}
}

func missingModels() fakeModels {
	return fakeModels{st: registry.Status{Loaded: false, LoadError: "open models/x.json: no such file or directory"}}
}

type fakeJobs struct {
	jobs map[uuid.UUID]*entity.ClassificationJob
	err  error
}

func (f *fakeJobs) Get(_ context.Context, id uuid.UUID) (*entity.ClassificationJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) ListRecent(_ context.Context, limit int) ([]*entity.ClassificationJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.ClassificationJob
	for _, j := range f.jobs {
		if len(out) == limit {
			break
		}
		out = append(out, j)
	}
	return out, nil
}

func sampleJob() *entity.ClassificationJob {
	return &entity.ClassificationJob{
		ID:        uuid.MustParse("6f1c2d7e-8a4b-4c3d-9e2f-1a2b3c4d5e6f"),
		Filename:  "loan.pdf",
		PageCount: 3,
		Status:    constants.JobStatusSucceeded,
		Threshold: 0.85,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// multipartRequest builds a POST with a single "file" part.
func multipartRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
