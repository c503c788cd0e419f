package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs OCR through a Tesseract client.
type TesseractRecognizer struct {
	client *gosseract.Client
}

var _ Recognizer = (*TesseractRecognizer)(nil)

// NewTesseractRecognizer opens a client for the given languages (e.g. "eng").
func NewTesseractRecognizer(languages ...string) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set ocr languages %v: %w", languages, err)
		}
	}
	return &TesseractRecognizer{client: client}, nil
}

// TesseractFactory returns a RecognizerFactory for the given languages.
func TesseractFactory(languages ...string) RecognizerFactory {
	return func() (Recognizer, error) {
		return NewTesseractRecognizer(languages...)
	}
}

// Recognize returns the page text and the mean word confidence.
func (t *TesseractRecognizer) Recognize(ctx context.Context, imagePath string) (OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return OCRResult{}, err
	}
	if err := t.client.SetImage(imagePath); err != nil {
		return OCRResult{}, fmt.Errorf("load image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return OCRResult{}, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return OCRResult{Text: text}, nil
	}
	return OCRResult{Text: text, Confidence: meanConfidence(boxes)}, nil
}

// Close releases the Tesseract client.
func (t *TesseractRecognizer) Close() error {
	return t.client.Close()
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
