package textextract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/rasterize"
)

type mapLayer map[int]string

func (m mapLayer) PageText(i int) string { return m[i] }

type fakeEngine struct {
	mu    sync.Mutex
	texts map[string]string
	errs  map[string]error
	block bool
	calls []string
}

func (f *fakeEngine) Recognize(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := f.errs[path]; err != nil {
		return "", err
	}
	return f.texts[path], nil
}

func TestExtractPageUsesEmbeddedText(t *testing.T) {
	eng := &fakeEngine{}
	x := NewExtractor(Config{MinTextLength: 10}, eng, nil)

	res := x.ExtractPage(context.Background(), mapLayer{1: "  PROMISSORY NOTE\r\nFOR VALUE RECEIVED  "}, rasterize.PageImage{Index: 1, Path: "p1.png"})

	assert.Equal(t, constants.TextSourceEmbedded, res.Source)
	assert.Equal(t, "PROMISSORY NOTE\nFOR VALUE RECEIVED", res.Text)
	assert.Equal(t, len([]rune(res.Text)), res.Length)
	assert.Empty(t, eng.calls)
}

func TestExtractPageFallsBackToOCR(t *testing.T) {
	eng := &fakeEngine{texts: map[string]string{"p2.png": "ASSIGNMENT OF MORTGAGE\n\n\n\nAssignor"}}
	x := NewExtractor(Config{MinTextLength: 10}, eng, nil)

	res := x.ExtractPage(context.Background(), mapLayer{2: "  a  "}, rasterize.PageImage{Index: 2, Path: "p2.png"})

	assert.Equal(t, constants.TextSourceOCR, res.Source)
	assert.Equal(t, "ASSIGNMENT OF MORTGAGE\n\nAssignor", res.Text)
	assert.Equal(t, 1, res.EmbeddedLength)
	assert.Positive(t, res.Length)
	assert.Equal(t, []string{"p2.png"}, eng.calls)
}

func TestExtractPageThresholdIsInclusive(t *testing.T) {
	eng := &fakeEngine{}
	x := NewExtractor(Config{MinTextLength: 10}, eng, nil)

	res := x.ExtractPage(context.Background(), mapLayer{1: "0123456789"}, rasterize.PageImage{Index: 1, Path: "p1.png"})
	assert.Equal(t, constants.TextSourceEmbedded, res.Source)
	assert.Empty(t, eng.calls)

	res = x.ExtractPage(context.Background(), mapLayer{1: "012345678"}, rasterize.PageImage{Index: 1, Path: "p1.png"})
	assert.Equal(t, constants.TextSourceNone, res.Source)
	assert.Len(t, eng.calls, 1)
}

func TestExtractPageOCRFailureIsAbsorbed(t *testing.T) {
	boom := errors.New("tesseract: exit status 1")
	eng := &fakeEngine{errs: map[string]error{"p1.png": boom}}
	x := NewExtractor(Config{MinTextLength: 10}, eng, nil)

	res := x.ExtractPage(context.Background(), mapLayer{}, rasterize.PageImage{Index: 1, Path: "p1.png"})

	assert.Equal(t, constants.TextSourceNone, res.Source)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Length)
	assert.ErrorIs(t, res.OCRErr, boom)
}

func TestExtractPageOCRTimeout(t *testing.T) {
	eng := &fakeEngine{block: true}
	x := NewExtractor(Config{MinTextLength: 10, PageTimeout: 20 * time.Millisecond}, eng, nil)

	res := x.ExtractPage(context.Background(), mapLayer{}, rasterize.PageImage{Index: 3, Path: "p3.png"})

	assert.Equal(t, 3, res.Index)
	assert.Equal(t, constants.TextSourceNone, res.Source)
	assert.ErrorIs(t, res.OCRErr, context.DeadlineExceeded)
}

func TestExtractPageWithoutEngine(t *testing.T) {
	x := NewExtractor(Config{MinTextLength: 10}, nil, nil)
	res := x.ExtractPage(context.Background(), mapLayer{}, rasterize.PageImage{Index: 1})
	assert.Equal(t, constants.TextSourceNone, res.Source)
	require.Error(t, res.OCRErr)
	assert.True(t, strings.Contains(res.OCRErr.Error(), "no ocr engine"))
}
