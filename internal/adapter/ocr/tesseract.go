package ocr

import (
	"fmt"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// TesseractEngine is the local fallback when no cloud OCR is configured
// or all cloud engines fail. It needs the tesseract shared library and
// the language data installed on the host.
type TesseractEngine struct {
	lang          string
	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a Tesseract-backed engine.
func NewTesseract(cfg config.Config) *TesseractEngine {
	return &TesseractEngine{lang: cfg.TesseractLang, clientFactory: gosseract.NewClient}
}

// Name identifies the engine in logs and metrics.
func (e *TesseractEngine) Name() string { return "tesseract" }

// ExtractText runs local OCR on the image. Confidence is the average
// word confidence Tesseract reports, already on a 0-100 scale.
func (e *TesseractEngine) ExtractText(ctx domain.Context, image []byte) (domain.OCRResult, error) {
	select {
	case <-ctx.Done():
		return domain.OCRResult{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetImageFromBytes(image); err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.tesseract: set image: %w", err)
	}
	if e.lang != "" {
		if err := c.SetLanguage(e.lang); err != nil {
			return domain.OCRResult{}, fmt.Errorf("op=ocr.tesseract: set language: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.tesseract: recognize: %w", err)
	}

	conf := 0.0
	if boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		conf = sum / float64(len(boxes))
	}

	return domain.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: int(math.Round(conf)),
		Engine:     e.Name(),
	}, nil
}
