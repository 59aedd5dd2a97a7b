// Package ocr implements text extraction from essay images. Engines are
// tried in order of quality: Azure Read v4, Google Vision, local Tesseract.
package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// AzureReadEngine extracts text with the Azure AI Vision Read v4 API.
// Only handwritten lines are kept: printed lines on an essay sheet are
// the prompt or the form, not the student's writing.
type AzureReadEngine struct {
	endpoint string
	key      string
	hc       *http.Client
}

// NewAzureRead constructs the Azure engine from configuration.
func NewAzureRead(cfg config.Config) *AzureReadEngine {
	return &AzureReadEngine{
		endpoint: strings.TrimRight(cfg.AzureVisionEndpoint, "/"),
		key:      cfg.AzureVisionKey,
		hc:       &http.Client{Timeout: cfg.OCRTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Name identifies the engine in logs and metrics.
func (e *AzureReadEngine) Name() string { return "azure_read" }

type azureReadResponse struct {
	ReadResult struct {
		Blocks []struct {
			Lines []struct {
				Text  string `json:"text"`
				Words []struct {
					Text       string  `json:"text"`
					Confidence float64 `json:"confidence"`
					Style      *struct {
						Name string `json:"name"`
					} `json:"style"`
				} `json:"words"`
			} `json:"lines"`
		} `json:"blocks"`
	} `json:"readResult"`
}

// ExtractText sends the image to the Read API and keeps handwritten lines.
func (e *AzureReadEngine) ExtractText(ctx domain.Context, image []byte) (domain.OCRResult, error) {
	url := e.endpoint + "/computervision/imageanalysis:analyze?api-version=2024-05-01&features=read&model-version=latest&language=pt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.azure: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", e.key)

	resp, err := e.hc.Do(req)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.azure: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.azure: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.azure: read api status %d", resp.StatusCode)
	}

	var out azureReadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.OCRResult{}, fmt.Errorf("op=ocr.azure: %w", err)
	}

	var handwritten []string
	var confSum float64
	for _, block := range out.ReadResult.Blocks {
		for _, line := range block.Lines {
			if len(line.Words) == 0 {
				continue
			}
			style := line.Words[0].Style
			if style == nil || style.Name != "handwritten" {
				continue
			}
			var lineConf float64
			for _, w := range line.Words {
				lineConf += w.Confidence
			}
			lineConf /= float64(len(line.Words))
			handwritten = append(handwritten, line.Text)
			confSum += lineConf
		}
	}
	if len(handwritten) == 0 {
		return domain.OCRResult{Engine: e.Name()}, nil
	}
	return domain.OCRResult{
		Text:       strings.Join(handwritten, "\n"),
		Confidence: int(math.Round(confSum / float64(len(handwritten)) * 100)),
		Engine:     e.Name(),
	}, nil
}
