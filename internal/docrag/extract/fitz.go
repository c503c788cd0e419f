package extract

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/kart-io/logger"
)

// FitzDocument reads text and renders pages with MuPDF.
type FitzDocument struct{}

var (
	_ TextSource = FitzDocument{}
	_ Rasterizer = FitzDocument{}
)

// PageTexts returns the text of every page. Unreadable pages yield "".
func (FitzDocument) PageTexts(ctx context.Context, pdfPath string) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	texts := make([]string, doc.NumPage())
	for i := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			logger.Warnw("page text extraction failed", "page", i+1, "error", err)
			continue
		}
		texts[i] = text
	}
	return texts, nil
}

// Open opens pdfPath for rendering.
func (FitzDocument) Open(pdfPath string) (RasterDocument, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &fitzRaster{doc: doc}, nil
}

type fitzRaster struct {
	doc *fitz.Document
}

func (r *fitzRaster) NumPages() int {
	return r.doc.NumPage()
}

func (r *fitzRaster) RenderPage(page int, dpi float64, dst string) error {
	img, err := r.doc.ImageDPI(page, dpi)
	if err != nil {
		return fmt.Errorf("render page %d: %w", page+1, err)
	}
	if err := imaging.Save(img, dst); err != nil {
		return fmt.Errorf("save page %d: %w", page+1, err)
	}
	return nil
}

func (r *fitzRaster) Close() error {
	return r.doc.Close()
}
