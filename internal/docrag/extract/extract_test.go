package extract

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

type fakeText struct {
	texts []string
	err   error
}

func (f fakeText) PageTexts(context.Context, string) ([]string, error) {
	return f.texts, f.err
}

type fakeRaster struct {
	pages    int
	err      error
	rendered []string
	closed   bool
}

func (f *fakeRaster) Open(string) (RasterDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeRaster) NumPages() int { return f.pages }

func (f *fakeRaster) RenderPage(_ int, _ float64, dst string) error {
	f.rendered = append(f.rendered, dst)
	return os.WriteFile(dst, []byte("png"), 0o600)
}

func (f *fakeRaster) Close() error {
	f.closed = true
	return nil
}

type fakeRecognizer struct {
	results map[string]OCRResult
	fail    bool
	closes  int
}

func (f *fakeRecognizer) Recognize(_ context.Context, imagePath string) (OCRResult, error) {
	if f.fail {
		return OCRResult{}, stderrors.New("engine crashed")
	}
	return f.results[filepath.Base(imagePath)], nil
}

func (f *fakeRecognizer) Close() error {
	f.closes++
	return nil
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name        string
		text, ocr   string
		wantContent string
		wantType    model.ContentType
		wantOK      bool
	}{
		{"both, ocr not longer", "hello world", "hello", "hello world", model.ContentText, true},
		{"both, ocr much longer", "abc", "abcdefghij", "abc" + OCRAdditionalMarker + "abcdefghij", model.ContentMixed, true},
		{"ratio boundary is exclusive", "abcde", "abcdef", "abcde", model.ContentText, true},
		{"text only", "only text", "", "only text", model.ContentText, true},
		{"ocr only", "", "scanned", "scanned", model.ContentOCR, true},
		{"neither", "", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, typ, ok := Fuse(tt.text, tt.ocr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantContent, content)
			assert.Equal(t, tt.wantType, typ)
		})
	}
}

func TestExtractFusesPages(t *testing.T) {
	scratch := t.TempDir()
	raster := &fakeRaster{pages: 3}
	rec := &fakeRecognizer{results: map[string]OCRResult{
		"page-1.png": {Text: "  short ", Confidence: 90},
		"page-2.png": {Text: "a much longer scanned paragraph", Confidence: 75},
	}}
	e := NewFusionExtractor(
		fakeText{texts: []string{"  Native page one  ", "tiny", ""}},
		raster,
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: scratch},
	)

	pages, err := e.Extract(context.Background(), "/docs/a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2, "blank third page is dropped")

	assert.Equal(t, model.PageRecord{
		Content: "Native page one", Page: 1, ContentType: model.ContentText,
		OCRConfidence: 90, Source: "/docs/a.pdf",
	}, pages[0])
	assert.Equal(t, 2, pages[1].Page)
	assert.Equal(t, model.ContentMixed, pages[1].ContentType)
	assert.Equal(t, "tiny"+OCRAdditionalMarker+"a much longer scanned paragraph", pages[1].Content)
	assert.Equal(t, 75.0, pages[1].OCRConfidence)

	assert.Equal(t, 1, rec.closes)
	assert.True(t, raster.closed)
	assert.Len(t, raster.rendered, 3)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch images are removed")
}

func TestExtractOCRFailureDegradesToText(t *testing.T) {
	m := metrics.New()
	rec := &fakeRecognizer{fail: true}
	e := NewFusionExtractor(
		fakeText{texts: []string{"page one", "page two"}},
		&fakeRaster{pages: 2},
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: t.TempDir()},
		WithMetrics(m),
	)

	pages, err := e.Extract(context.Background(), "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.Equal(t, model.ContentText, p.ContentType)
		assert.Zero(t, p.OCRConfidence)
	}
	assert.Equal(t, uint64(2), m.Snapshot().OCRFailures)
	assert.Equal(t, 1, rec.closes)
}

func TestExtractTextOnlyWhenRasterUnavailable(t *testing.T) {
	opened := false
	e := NewFusionExtractor(
		fakeText{texts: []string{"text"}},
		&fakeRaster{err: stderrors.New("no renderer")},
		func() (Recognizer, error) { opened = true; return &fakeRecognizer{}, nil },
		Config{ScratchDir: t.TempDir()},
	)

	pages, err := e.Extract(context.Background(), "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.False(t, opened, "no OCR engine without pages to render")
}

func TestExtractUnreadableDocument(t *testing.T) {
	scratch := t.TempDir()
	e := NewFusionExtractor(
		fakeText{err: stderrors.New("bad xref")},
		&fakeRaster{err: stderrors.New("bad header")},
		func() (Recognizer, error) { return &fakeRecognizer{}, nil },
		Config{ScratchDir: scratch},
	)

	_, err := e.Extract(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExtraction))
}

func TestExtractRecognizerInitFailure(t *testing.T) {
	scratch := t.TempDir()
	e := NewFusionExtractor(
		fakeText{texts: []string{"a"}},
		&fakeRaster{pages: 1},
		func() (Recognizer, error) { return nil, stderrors.New("no tessdata") },
		Config{ScratchDir: scratch},
	)

	_, err := e.Extract(context.Background(), "a.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExtraction))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scratch := t.TempDir()
	raster := &fakeRaster{pages: 1}
	rec := &fakeRecognizer{}
	e := NewFusionExtractor(
		fakeText{texts: []string{"a"}},
		raster,
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: scratch},
	)

	_, err := e.Extract(ctx, "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rec.closes)
	assert.True(t, raster.closed)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// cancellingRecognizer cancels the run while recognising the first page.
type cancellingRecognizer struct {
	fakeRecognizer
	cancel context.CancelFunc
}

func (c *cancellingRecognizer) Recognize(ctx context.Context, imagePath string) (OCRResult, error) {
	c.cancel()
	return c.fakeRecognizer.Recognize(ctx, imagePath)
}

func TestExtractCancelledMidRunReleasesResources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scratch := t.TempDir()
	raster := &fakeRaster{pages: 3}
	rec := &cancellingRecognizer{cancel: cancel}
	e := NewFusionExtractor(
		fakeText{texts: []string{"one", "two", "three"}},
		raster,
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: scratch},
	)

	pages, err := e.Extract(ctx, "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pages)
	assert.Len(t, raster.rendered, 1, "no page after the cancellation is rendered")
	assert.Equal(t, 1, rec.closes)
	assert.True(t, raster.closed)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory is removed")
}

func TestExtractOCRFailureReleasesResources(t *testing.T) {
	scratch := t.TempDir()
	rec := &fakeRecognizer{fail: true}
	e := NewFusionExtractor(
		fakeText{texts: []string{"one", "two"}},
		&fakeRaster{pages: 2},
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: scratch},
	)

	pages, err := e.Extract(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 1, rec.closes)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type fakePreprocessor struct {
	calls int
}

func (f *fakePreprocessor) Preprocess(src string) (string, error) {
	f.calls++
	return "", stderrors.New("decode failed")
}

func TestExtractPreprocessFailureUsesOriginal(t *testing.T) {
	pre := &fakePreprocessor{}
	rec := &fakeRecognizer{results: map[string]OCRResult{"page-1.png": {Text: "scan", Confidence: 60}}}
	e := NewFusionExtractor(
		fakeText{texts: []string{""}},
		&fakeRaster{pages: 1},
		func() (Recognizer, error) { return rec, nil },
		Config{ScratchDir: t.TempDir()},
		WithPreprocessor(pre),
	)

	pages, err := e.Extract(context.Background(), "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pre.calls)
	assert.Equal(t, model.ContentOCR, pages[0].ContentType)
	assert.Equal(t, "scan", pages[0].Content)
}
