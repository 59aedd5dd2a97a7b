package ocr

import (
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/observability"
	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
	"github.com/ezsentencefix/ez-sentence-fix/pkg/textx"
)

// Engine is one OCR backend in the fallback chain.
type Engine interface {
	Name() string
	ExtractText(ctx domain.Context, image []byte) (domain.OCRResult, error)
}

// Chain implements domain.OCRClient by trying engines in order and
// returning the first non-empty extraction.
type Chain struct {
	engines []Engine
}

// NewChain wires the configured engines. Cloud engines are skipped when
// their credentials are absent; Tesseract is always last.
func NewChain(cfg config.Config) *Chain {
	var engines []Engine
	if cfg.AzureVisionEndpoint != "" && cfg.AzureVisionKey != "" {
		engines = append(engines, NewAzureRead(cfg))
	}
	if cfg.GoogleVisionAPIKey != "" {
		engines = append(engines, NewGoogleVision(cfg))
	}
	engines = append(engines, NewTesseract(cfg))
	return &Chain{engines: engines}
}

// NewChainWithEngines builds a chain over an explicit engine list.
func NewChainWithEngines(engines ...Engine) *Chain {
	return &Chain{engines: engines}
}

// ExtractText tries each engine until one yields text. Engine failures
// are logged and fall through; the last error surfaces only when every
// engine comes back empty.
func (c *Chain) ExtractText(ctx domain.Context, image []byte) (domain.OCRResult, error) {
	var lastErr error
	for _, eng := range c.engines {
		start := time.Now()
		res, err := eng.ExtractText(ctx, image)
		observability.OCRRequestDuration.WithLabelValues(eng.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.OCRRequestsTotal.WithLabelValues(eng.Name(), "error").Inc()
			slog.Warn("ocr engine failed, falling through",
				slog.String("engine", eng.Name()), slog.Any("error", err))
			lastErr = err
			continue
		}
		res.Text = textx.SanitizeText(res.Text)
		if strings.TrimSpace(res.Text) == "" {
			observability.OCRRequestsTotal.WithLabelValues(eng.Name(), "empty").Inc()
			slog.Info("ocr engine found no text", slog.String("engine", eng.Name()))
			continue
		}
		observability.OCRRequestsTotal.WithLabelValues(eng.Name(), "ok").Inc()
		return res, nil
	}
	if lastErr != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.Chain: all engines failed: %w", lastErr)
	}
	return domain.OCRResult{}, fmt.Errorf("op=ocr.Chain: %w: no text detected in image", domain.ErrInvalidArgument)
}
