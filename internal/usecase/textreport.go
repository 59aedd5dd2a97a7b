package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
	"github.com/ezsentencefix/ez-sentence-fix/pkg/textx"
)

// Heuristic text report: fast, offline feedback on the extracted text
// and on the OCR quality itself, independent of any LLM call.

var (
	longRunRe     = regexp.MustCompile(`(?i)[a-záéíóúâêîôûãõç]{15,}`)
	complexWordRe = regexp.MustCompile(`\b\w{8,}\b`)
	connectiveRe  = regexp.MustCompile(`(?i)\b(portanto|contudo|entretanto|além disso|por outro lado|consequentemente)\b`)
	punctuationRe = regexp.MustCompile(`[.!?,:;]`)
	terminalRe    = regexp.MustCompile(`[.!?]`)
	strangeCharRe = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\s]`)
)

// BuildTextReport computes statistics, OCR quality signals, and quick
// feedback for the given text. engineConfidence is the 0-100 confidence
// reported by the OCR engine.
func BuildTextReport(text string, engineConfidence float64) domain.TextReport {
	clean := strings.TrimSpace(text)
	words := textx.CountWords(clean)

	quality := assessOCRQuality(clean, engineConfidence)
	report := domain.TextReport{
		Words:       words,
		Characters:  len([]rune(clean)),
		Paragraphs:  len(textx.SplitParagraphs(clean)),
		Sentences:   textx.CountSentences(clean),
		Quality:     quality,
		QuickScore:  quickScore(clean, words, float64(quality.Confidence)),
		Strengths:   findStrengths(clean, words),
		Issues:      findIssues(clean, words, quality),
		Suggestions: buildSuggestions(words, quality),
	}
	return report
}

func assessOCRQuality(text string, engineConfidence float64) domain.OCRQuality {
	if text == "" {
		return domain.OCRQuality{
			Level:      "baixa",
			Problems:   []string{"Nenhum texto foi detectado na imagem"},
			Confidence: 0,
		}
	}

	var problems []string
	confidence := 100.0
	if engineConfidence > 0 && engineConfidence < confidence {
		confidence = engineConfidence
	}

	if strangeCharRe.MatchString(text) {
		problems = append(problems, "Caracteres não reconhecidos detectados")
		confidence -= 20
	}

	fields := strings.Fields(text)
	short := 0
	for _, w := range fields {
		if len([]rune(w)) <= 2 {
			short++
		}
	}
	if len(fields) > 0 && float64(short)/float64(len(fields)) > 0.3 {
		problems = append(problems, "Muitas palavras fragmentadas, possível problema de qualidade da imagem")
		confidence -= 30
	}

	if longRunRe.MatchString(text) {
		problems = append(problems, "Palavras muito longas detectadas, possível falta de espaçamento")
		confidence -= 15
	}

	if !punctuationRe.MatchString(text) && len(text) > 50 {
		problems = append(problems, "Nenhuma pontuação detectada")
		confidence -= 10
	}

	if hasRepeatedRuns(text) {
		problems = append(problems, "Padrões repetitivos detectados")
		confidence -= 15
	}

	if confidence < 0 {
		confidence = 0
	}
	level := "alta"
	switch {
	case confidence < 40:
		level = "baixa"
	case confidence < 70:
		level = "media"
	}
	return domain.OCRQuality{Level: level, Problems: problems, Confidence: int(math.Round(confidence))}
}

// hasRepeatedRuns reports whether a short chunk (2 to 4 runes) repeats
// three or more times back to back, a typical OCR stutter artifact.
func hasRepeatedRuns(text string) bool {
	runes := []rune(text)
	for width := 2; width <= 4; width++ {
		for i := 0; i+3*width <= len(runes); i++ {
			chunk := string(runes[i : i+width])
			if chunk == string(runes[i+width:i+2*width]) && chunk == string(runes[i+2*width:i+3*width]) {
				return true
			}
		}
	}
	return false
}

func quickScore(text string, words int, ocrConfidence float64) float64 {
	if text == "" {
		return 0
	}
	score := 0.0
	switch {
	case words >= 150:
		score += 30
	case words >= 100:
		score += 20
	case words >= 50:
		score += 10
	default:
		score += 5
	}
	if len(textx.SplitParagraphs(text)) > 1 {
		score += 10
	}
	if terminalRe.MatchString(text) {
		score += 10
	}
	score *= ocrConfidence / 100
	if score > 100 {
		score = 100
	}
	return score
}

func findStrengths(text string, words int) []string {
	var out []string
	if words >= 150 {
		out = append(out, "Texto com extensão adequada para uma redação")
	}
	if terminalRe.MatchString(text) {
		out = append(out, "Presença de pontuação detectada")
	}
	if len(textx.SplitParagraphs(text)) > 1 {
		out = append(out, "Estrutura de parágrafos identificada")
	}
	if len(complexWordRe.FindAllString(text, 6)) > 5 {
		out = append(out, "Vocabulário variado detectado")
	}
	if connectiveRe.MatchString(text) {
		out = append(out, "Conectores argumentativos identificados")
	}
	if len(out) == 0 {
		out = append(out, "Texto extraído com sucesso")
	}
	return out
}

func findIssues(text string, words int, quality domain.OCRQuality) []string {
	var out []string
	if quality.Level == "baixa" {
		out = append(out, "Qualidade de OCR baixa, o texto pode estar incompleto")
	}
	if words < 50 {
		out = append(out, "Texto muito curto para uma redação completa")
	}
	if !terminalRe.MatchString(text) && len(text) > 50 {
		out = append(out, "Ausência de pontuação final")
	}
	lower := 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			lower++
		}
	}
	if len(text) > 20 && float64(lower)/float64(len([]rune(text))) < 0.3 {
		out = append(out, "Possível problema com detecção de maiúsculas e minúsculas")
	}
	return out
}

func buildSuggestions(words int, quality domain.OCRQuality) []string {
	var out []string
	if quality.Level == "baixa" {
		out = append(out,
			"Tente usar uma imagem com melhor qualidade e contraste",
			"Certifique-se de que o texto está bem iluminado e nítido")
	}
	if words < 100 {
		out = append(out, "Considere desenvolver mais o texto para atingir o mínimo recomendado")
	}
	for _, p := range quality.Problems {
		if strings.Contains(p, "fragmentadas") {
			out = append(out, "A imagem pode estar com resolução baixa, tente uma imagem maior")
		}
		if strings.Contains(p, "pontuação") {
			out = append(out, "Verifique se a pontuação está clara na imagem original")
		}
	}
	if len(out) == 0 {
		out = append(out, "Continue desenvolvendo o texto e revise a estrutura argumentativa")
	}
	return out
}
