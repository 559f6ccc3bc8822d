package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
)

func newTestHTTP(c *fakeClassifier, models fakeModels, jobs JobReader) http.Handler {
	return NewHTTPServer(c, models, jobs, nil, 1<<20, nil).Handler()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	for _, tc := range []struct {
		name   string
		models fakeModels
		loaded bool
	}{
		{"loaded", loadedModels(), true},
		{"missing", missingModels(), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHTTP(&fakeClassifier{}, tc.models, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, tc.loaded, body["model_loaded"])
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestHTTP(&fakeClassifier{}, loadedModels(), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestModelInfo(t *testing.T) {
	h := newTestHTTP(&fakeClassifier{}, loadedModels(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model-info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, "logistic_regression", body["model_type"])
	assert.InDelta(t, 0.912, body["accuracy"], 1e-9)
	assert.EqualValues(t, 1240, body["training_samples"])
	assert.EqualValues(t, 310, body["test_samples"])
	assert.Equal(t, []any{"Note", "Mortgage", "Rider"}, body["supported_labels"])
	assert.InDelta(t, 0.8, body["min_accuracy_threshold"], 1e-9)
}

func TestModelInfoUnavailable(t *testing.T) {
	h := newTestHTTP(&fakeClassifier{}, missingModels(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model-info", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["model_loaded"])
	assert.Equal(t, "Classification model is not loaded", body["error"])
	assert.Contains(t, body["details"], "no such file")
}

func TestClassify(t *testing.T) {
	c := &fakeClassifier{res: threePageResult()}
	h := newTestHTTP(c, loadedModels(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/classify", "dir/loan.pdf", []byte("%PDF-1.4 fake")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, "loan.pdf", c.filename)
	assert.Equal(t, []byte("%PDF-1.4 fake"), c.pdf)
	assert.Zero(t, c.opts)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "loan.pdf", body["filename"])
	assert.EqualValues(t, 3, body["page_count"])
	preds := body["predictions"].([]any)
	require.Len(t, preds, 3)
	second := preds[1].(map[string]any)
	assert.EqualValues(t, 2, second["page"])
	assert.Equal(t, "UNLABELED", second["predicted_label"])
	assert.InDelta(t, 0.41, second["confidence"], 1e-9)
	assert.EqualValues(t, 0, second["text_length"])
	assert.NotContains(t, second, "ModelLabel")
}

func TestClassifyThresholdQuery(t *testing.T) {
	c := &fakeClassifier{res: threePageResult()}
	h := newTestHTTP(c, loadedModels(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/classify?threshold=0.5", "loan.pdf", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, c.opts)

	for _, raw := range []string{"1.5", "-0.1", "abc", "NaN", "nan"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/classify?threshold="+raw, "loan.pdf", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Contains(t, decode(t, rec)["details"], "threshold")
	}
	assert.Equal(t, 1, c.calls)
}

func TestClassifyRejectsBadUploads(t *testing.T) {
	c := &fakeClassifier{res: threePageResult()}
	h := newTestHTTP(c, loadedModels(), nil)

	t.Run("missing file part", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader("--x--\r\n"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request", decode(t, rec)["error"])
	})

	t.Run("not a pdf", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/classify", "scan.png", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["details"], ".pdf")
	})

	t.Run("too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/classify", "big.pdf", make([]byte, 1<<20+10)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("body over the reader cap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/classify", "big.pdf", make([]byte, 3<<20)))
		assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	})

	assert.Zero(t, c.calls)
}

func TestClassifyErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
		msg    string
	}{
		{common.ConversionErrorf(errors.New("xref"), "read pdf"), http.StatusBadRequest, "Could not read PDF"},
		{common.ErrEmptyDocument, http.StatusBadRequest, "PDF has no pages"},
		{fmt.Errorf("registry: %w", common.ErrModelUnavailable), http.StatusServiceUnavailable, "Classification model is not loaded"},
		{fmt.Errorf("page 2: %w", common.ErrModelInvocation), http.StatusInternalServerError, "Classification failed"},
		{errors.New("boom"), http.StatusInternalServerError, "An internal error occurred"},
	} {
		t.Run(tc.msg, func(t *testing.T) {
			h := newTestHTTP(&fakeClassifier{err: tc.err}, loadedModels(), nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, multipartRequest(t, "/classify", "loan.pdf", []byte("x")))

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.msg, body["error"])
			assert.Equal(t, tc.err.Error(), body["details"])
		})
	}
}

func TestClassifyExport(t *testing.T) {
	c := &fakeClassifier{res: threePageResult()}
	h := newTestHTTP(c, loadedModels(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/classify/export", "loan.pdf", []byte("x")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="loan_predictions.xlsx"`)

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	label, err := f.GetCellValue("Predictions", "B3")
	require.NoError(t, err)
	assert.Equal(t, "UNLABELED", label)
}

func TestWrongMethod(t *testing.T) {
	h := newTestHTTP(&fakeClassifier{}, loadedModels(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/classify", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJobs(t *testing.T) {
	job := sampleJob()
	jobs := &fakeJobs{jobs: map[uuid.UUID]*entity.ClassificationJob{job.ID: job}}
	h := newTestHTTP(&fakeClassifier{}, loadedModels(), jobs)

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, job.ID.String(), body["id"])
		assert.Equal(t, "SUCCEEDED", body["status"])
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["jobs"], 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit=0", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJobsWithoutStore(t *testing.T) {
	h := newTestHTTP(&fakeClassifier{}, loadedModels(), nil)
	for _, target := range []string{"/jobs", "/jobs/" + uuid.NewString()} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}
