// Package extract turns a PDF into fused page records by combining the native
// text layer with OCR of the rendered page.
package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/infra/tracing"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

// OCRAdditionalMarker separates native text from appended OCR text.
const OCRAdditionalMarker = "\n\n[OCR Additional Content]\n"

// ocrSupplementRatio is how much longer OCR text must be before it is appended.
const ocrSupplementRatio = 1.2

// OCRResult is the text recognised on one image and its mean confidence (0-100).
type OCRResult struct {
	Text       string
	Confidence float64
}

// Recognizer performs OCR. One Recognizer is owned by a single extraction run.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (OCRResult, error)
	Close() error
}

// RecognizerFactory opens a Recognizer for one run.
type RecognizerFactory func() (Recognizer, error)

// TextSource returns the native text of every page, indexed from 0.
type TextSource interface {
	PageTexts(ctx context.Context, pdfPath string) ([]string, error)
}

// Rasterizer opens a PDF for page rendering.
type Rasterizer interface {
	Open(pdfPath string) (RasterDocument, error)
}

// RasterDocument renders pages of an open PDF to PNG files.
type RasterDocument interface {
	NumPages() int
	RenderPage(page int, dpi float64, dst string) error
	Close() error
}

// Preprocessor prepares a page image for OCR and returns the new image path.
type Preprocessor interface {
	Preprocess(imagePath string) (string, error)
}

// Config controls a FusionExtractor.
type Config struct {
	// DPI is the rendering resolution.
	DPI float64
	// ScratchDir is the parent of the per-run temporary directory; empty means os.TempDir.
	ScratchDir string
}

// FusionExtractor extracts fused page records from a PDF.
type FusionExtractor struct {
	text          TextSource
	raster        Rasterizer
	newRecognizer RecognizerFactory
	preprocessor  Preprocessor
	config        Config
	metrics       *metrics.Metrics
}

// Option configures a FusionExtractor.
type Option func(*FusionExtractor)

// WithPreprocessor enables image preprocessing before OCR.
func WithPreprocessor(p Preprocessor) Option {
	return func(e *FusionExtractor) {
		e.preprocessor = p
	}
}

// WithMetrics records page and OCR failure counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *FusionExtractor) {
		e.metrics = m
	}
}

// NewFusionExtractor creates a FusionExtractor.
func NewFusionExtractor(text TextSource, raster Rasterizer, newRecognizer RecognizerFactory, config Config, opts ...Option) *FusionExtractor {
	if config.DPI <= 0 {
		config.DPI = 300
	}
	e := &FusionExtractor{
		text:          text,
		raster:        raster,
		newRecognizer: newRecognizer,
		config:        config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the fused pages of pdfPath in page order. Pages with
// neither text nor OCR output are dropped. Page-level failures are logged and
// recovered; the document is unreadable only when neither source opens it.
func (e *FusionExtractor) Extract(ctx context.Context, pdfPath string) (pages []model.PageRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "extract.Extract", attribute.String("docrag.source", pdfPath))
	defer func() {
		tracing.RecordError(span, err)
		span.SetAttributes(tracing.AttrPages.Int(len(pages)))
		span.End()
	}()

	texts, textErr := e.text.PageTexts(ctx, pdfPath)
	if textErr != nil {
		logger.Warnw("text extraction failed, continuing with OCR only", "source", pdfPath, "error", textErr)
	}

	rasterDoc, rasterErr := e.raster.Open(pdfPath)
	if rasterErr != nil {
		logger.Warnw("rasterization unavailable, continuing with text only", "source", pdfPath, "error", rasterErr)
	} else {
		defer func() {
			if cerr := rasterDoc.Close(); cerr != nil {
				logger.Warnw("failed to close pdf", "source", pdfPath, "error", cerr)
			}
		}()
	}

	if textErr != nil && rasterErr != nil {
		return nil, errors.ErrExtraction.WithCause(fmt.Errorf("unreadable pdf %s: %w", pdfPath, stderrors.Join(textErr, rasterErr)))
	}

	rasterPages := 0
	if rasterDoc != nil {
		rasterPages = rasterDoc.NumPages()
	}
	total := max(len(texts), rasterPages)
	logger.Infof("Extracting %d pages from %s (text pages: %d, raster pages: %d)", total, pdfPath, len(texts), rasterPages)

	scratch, err := os.MkdirTemp(e.config.ScratchDir, "docrag-pages-*")
	if err != nil {
		return nil, errors.ErrExtraction.WithCause(fmt.Errorf("create scratch dir: %w", err))
	}
	defer func() {
		if rerr := os.RemoveAll(scratch); rerr != nil {
			logger.Warnw("failed to remove scratch dir", "dir", scratch, "error", rerr)
		}
	}()

	var recognizer Recognizer
	if rasterPages > 0 {
		recognizer, err = e.newRecognizer()
		if err != nil {
			return nil, errors.ErrExtraction.WithCause(fmt.Errorf("open ocr engine: %w", err))
		}
		defer func() {
			if cerr := recognizer.Close(); cerr != nil {
				logger.Warnw("failed to close ocr engine", "error", cerr)
			}
		}()
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var text string
		if i < len(texts) {
			text = strings.TrimSpace(texts[i])
		}

		var ocr OCRResult
		if i < rasterPages {
			ocr = e.ocrPage(ctx, rasterDoc, recognizer, scratch, i)
		}

		content, contentType, ok := Fuse(text, ocr.Text)
		if !ok {
			logger.Debugw("dropping empty page", "source", pdfPath, "page", i+1)
			continue
		}
		pages = append(pages, model.PageRecord{
			Content:       content,
			Page:          i + 1,
			ContentType:   contentType,
			OCRConfidence: ocr.Confidence,
			Source:        pdfPath,
		})
	}

	logger.Infow("extraction finished", "source", pdfPath, "pages", len(pages))
	return pages, nil
}

// ocrPage renders, optionally preprocesses and recognises page i. Any failure
// degrades to an empty result.
func (e *FusionExtractor) ocrPage(ctx context.Context, doc RasterDocument, recognizer Recognizer, scratch string, i int) OCRResult {
	imagePath := filepath.Join(scratch, fmt.Sprintf("page-%d.png", i+1))
	if err := doc.RenderPage(i, e.config.DPI, imagePath); err != nil {
		logger.Warnw("page rasterization failed", "page", i+1, "error", err)
		return OCRResult{}
	}

	if e.preprocessor != nil {
		processed, err := e.preprocessor.Preprocess(imagePath)
		if err != nil {
			logger.Warnw("image preprocessing failed, using original", "page", i+1, "error", err)
		} else {
			imagePath = processed
		}
	}

	res, err := recognizer.Recognize(ctx, imagePath)
	if err != nil {
		logger.Warnw("ocr failed", "page", i+1, "error", err)
		e.metrics.RecordOCRFailure()
		return OCRResult{}
	}
	res.Text = strings.TrimSpace(res.Text)
	return res
}

// Fuse combines trimmed native text and OCR text for one page. ok is false
// when both are empty.
func Fuse(text, ocr string) (content string, contentType model.ContentType, ok bool) {
	switch {
	case text != "" && ocr != "":
		if float64(utf8.RuneCountInString(ocr)) > ocrSupplementRatio*float64(utf8.RuneCountInString(text)) {
			return text + OCRAdditionalMarker + ocr, model.ContentMixed, true
		}
		return text, model.ContentText, true
	case text != "":
		return text, model.ContentText, true
	case ocr != "":
		return ocr, model.ContentOCR, true
	default:
		return "", "", false
	}
}
