// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"

	"log/slog"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// JSONCleaner recovers a JSON object from raw model output.
type JSONCleaner interface {
	CleanJSONResponse(response string) (string, error)
}

// FormatService cleans OCR noise from extracted text with one LLM pass.
// Formatting is best effort: any LLM or parse failure returns the input
// unchanged so scoring never depends on it.
type FormatService struct {
	LLM     domain.LLMClient
	Cleaner JSONCleaner
}

// NewFormatService constructs a FormatService with its dependencies.
func NewFormatService(llm domain.LLMClient, cleaner JSONCleaner) FormatService {
	return FormatService{LLM: llm, Cleaner: cleaner}
}

const formatSystemPrompt = `Você é um revisor de textos de redações do ENEM extraídos por OCR.
Reorganize o texto em parágrafos coerentes, corrija palavras coladas ou fragmentadas pelo OCR e a pontuação óbvia, sem alterar o conteúdo, o vocabulário ou o estilo do autor.
Responda APENAS com um objeto JSON no formato:
{"textoFormatado": "<texto completo reorganizado>", "correcoes": [{"original": "<trecho original>", "sugerido": "<trecho corrigido>", "motivo": "<razão curta>"}]}
Liste em "correcoes" apenas sugestões que você NÃO aplicou ao texto.`

type formatPayload struct {
	TextoFormatado string `json:"textoFormatado"`
	// alternate key seen across model versions
	FormattedText string `json:"formattedText"`
	Correcoes     []struct {
		Original string `json:"original"`
		Sugerido string `json:"sugerido"`
		Motivo   string `json:"motivo"`
	} `json:"correcoes"`
}

// Format returns cleaned text plus suggested corrections. Empty input is
// a no-op; failures fall back to the original text with no corrections.
func (s FormatService) Format(ctx domain.Context, text string) domain.FormatResult {
	if text == "" {
		return domain.FormatResult{}
	}
	fallback := domain.FormatResult{FormattedText: text}

	maxTokens := len(text)/3 + 500
	raw, err := s.LLM.Complete(ctx, formatSystemPrompt, text, maxTokens)
	if err != nil {
		slog.Warn("text formatting failed, using original text", slog.Any("error", err))
		return fallback
	}
	cleaned, err := s.Cleaner.CleanJSONResponse(raw)
	if err != nil {
		slog.Warn("formatter returned unparseable response, using original text", slog.Any("error", err))
		return fallback
	}
	var p formatPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		slog.Warn("formatter payload decode failed, using original text", slog.Any("error", err))
		return fallback
	}
	formatted := p.TextoFormatado
	if formatted == "" {
		formatted = p.FormattedText
	}
	if formatted == "" {
		return fallback
	}
	// A response far shorter than an analyzable text lost content along
	// the way; the original must keep flowing to the scorer.
	if len([]rune(formatted)) < domain.MinAnalyzableTextLen && len([]rune(text)) >= domain.MinAnalyzableTextLen {
		slog.Warn("formatter response truncated, using original text",
			slog.Int("formatted_len", len([]rune(formatted))))
		return fallback
	}

	out := domain.FormatResult{FormattedText: formatted}
	for _, c := range p.Correcoes {
		if c.Original == "" && c.Sugerido == "" {
			continue
		}
		out.Corrections = append(out.Corrections, domain.Correction{
			Original:  c.Original,
			Suggested: c.Sugerido,
			Reason:    c.Motivo,
		})
	}
	return out
}
