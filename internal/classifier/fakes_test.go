package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	"github.com/joseph-ayodele/collateral-classifier/internal/model"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
	"github.com/joseph-ayodele/collateral-classifier/internal/textextract"
)

type scored struct {
	label string
	conf  float64
}

// fakePredictor scores text by the first matching keyword, falling back to empty.
type fakePredictor struct {
	rules []struct {
		keyword string
		out     scored
	}
	empty scored
	fail  string // text containing this makes Classify fail
	err   error
	calls atomic.Int32
}

func (f *fakePredictor) on(keyword, label string, conf float64) *fakePredictor {
	f.rules = append(f.rules, struct {
		keyword string
		out     scored
	}{keyword, scored{label, conf}})
	return f
}

func (f *fakePredictor) Classify(text string) (string, float64, error) {
	f.calls.Add(1)
	if f.fail != "" && strings.Contains(text, f.fail) {
		return "", 0, f.err
	}
	for _, r := range f.rules {
		if strings.Contains(text, r.keyword) {
			return r.out.label, r.out.conf, nil
		}
	}
	return f.empty.label, f.empty.conf, nil
}

func (f *fakePredictor) Metadata() model.Metadata {
	return model.Metadata{ModelType: "logistic_regression", SupportedLabels: []string{"Note", "Rider"}}
}

// fakeRaster hands out a document with n pages and no files on disk.
type fakeRaster struct {
	err   error
	calls atomic.Int32
}

func (f *fakeRaster) Rasterize(_ context.Context, filename string, pdf []byte) (*rasterize.Document, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	n, err := strconv.Atoi(string(pdf))
	if err != nil {
		return nil, fmt.Errorf("fake pdf must be a page count: %w", err)
	}
	doc := &rasterize.Document{Filename: filename, PDF: pdf, PageCount: n}
	for i := 1; i <= n; i++ {
		doc.Pages = append(doc.Pages, rasterize.PageImage{Index: i, Path: fmt.Sprintf("page-%d.png", i)})
	}
	return doc, nil
}

type mapLayer map[int]string

func (m mapLayer) PageText(i int) string { return m[i] }

type staticOpener struct{ layer textextract.TextLayer }

func (s staticOpener) Open(context.Context, *rasterize.Document) textextract.TextLayer {
	return s.layer
}

// fakeOCR recognizes page-N.png by index.
type fakeOCR struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeOCR) Recognize(_ context.Context, path string) (string, error) {
	if err := f.errs[path]; err != nil {
		return "", err
	}
	return f.texts[path], nil
}

// slowExtractor finishes early pages last to shake out ordering bugs.
type slowExtractor struct {
	total   int
	running atomic.Int32
	peak    atomic.Int32
}

func (s *slowExtractor) ExtractPage(_ context.Context, _ textextract.TextLayer, page rasterize.PageImage) textextract.PageText {
	n := s.running.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer s.running.Add(-1)
	time.Sleep(time.Duration(s.total-page.Index) * time.Millisecond)
	text := fmt.Sprintf("page %d text", page.Index)
	return textextract.PageText{Index: page.Index, Text: text, Length: len(text)}
}

type recordedJob struct {
	job         entity.ClassificationJob
	finished    bool
	failed      string
	predictions json.RawMessage
}

type fakeRecorder struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*recordedJob
	startErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{jobs: map[uuid.UUID]*recordedJob{}}
}

func (f *fakeRecorder) Start(_ context.Context, job *entity.ClassificationJob) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job.ID = uuid.New()
	f.jobs[job.ID] = &recordedJob{job: *job}
	return nil
}

func (f *fakeRecorder) Finish(_ context.Context, id uuid.UUID, pageCount int, modelType string, preds json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("unknown job")
	}
	j.finished = true
	j.job.PageCount = pageCount
	j.job.ModelType = modelType
	j.predictions = preds
	return nil
}

func (f *fakeRecorder) Fail(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("unknown job")
	}
	j.failed = message
	return nil
}

// pdftoppmStub writes prefix-N.png for every requested page.
type pdftoppmStub struct {
	mu       sync.Mutex
	prefixes []string
}

func (s *pdftoppmStub) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := args[len(args)-1]
	s.prefixes = append(s.prefixes, prefix)
	last := 1
	for i, a := range args {
		if a == "-l" {
			last, _ = strconv.Atoi(args[i+1])
		}
	}
	for n := 1; n <= last; n++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, n), []byte("png"), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}
