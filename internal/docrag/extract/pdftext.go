package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PlainTextSource reads the text layer with the pure Go ledongthuc/pdf reader.
type PlainTextSource struct{}

var _ TextSource = PlainTextSource{}

// PageTexts returns the text of every page. Pages without content or that
// fail to decode yield "".
func (PlainTextSource) PageTexts(ctx context.Context, pdfPath string) (texts []string, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	texts = make([]string, reader.NumPage())
	for i := 1; i <= len(texts); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = text
	}
	return texts, nil
}
