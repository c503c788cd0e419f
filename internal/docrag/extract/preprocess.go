package extract

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// ImagingPreprocessor converts a page image to high-contrast black and white:
// greyscale, contrast stretch, sharpen, then a fixed threshold.
type ImagingPreprocessor struct {
	// Threshold splits black from white; 0 means 128.
	Threshold uint8
	// Sigma is the sharpen strength; 0 means 1.
	Sigma float64
}

var _ Preprocessor = ImagingPreprocessor{}

// Preprocess writes <name>_processed.png next to imagePath and returns its path.
func (p ImagingPreprocessor) Preprocess(imagePath string) (string, error) {
	threshold := p.Threshold
	if threshold == 0 {
		threshold = 128
	}
	sigma := p.Sigma
	if sigma == 0 {
		sigma = 1
	}

	src, err := imaging.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}

	img := normalize(imaging.Grayscale(src))
	img = imaging.Sharpen(img, sigma)
	img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R >= threshold {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	})

	dst := strings.TrimSuffix(imagePath, ".png") + "_processed.png"
	if err := imaging.Save(img, dst); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return dst, nil
}

// normalize stretches grey levels of a greyscale image to the full range.
func normalize(img *image.NRGBA) *image.NRGBA {
	lo, hi := 255, 0
	for i := 0; i < len(img.Pix); i += 4 {
		v := int(img.Pix[i])
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi <= lo {
		return img
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8((int(c.R) - lo) * 255 / (hi - lo))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
