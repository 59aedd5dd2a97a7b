package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTextReport_EmptyText(t *testing.T) {
	t.Parallel()
	r := BuildTextReport("", 0)
	assert.Equal(t, 0, r.Words)
	assert.Equal(t, "baixa", r.Quality.Level)
	assert.Zero(t, r.Quality.Confidence)
	assert.Zero(t, r.QuickScore)
}

func TestBuildTextReport_Statistics(t *testing.T) {
	t.Parallel()
	text := "Primeira frase. Segunda frase!\n\nSegundo parágrafo aqui?"
	r := BuildTextReport(text, 95)
	assert.Equal(t, 7, r.Words)
	assert.Equal(t, 2, r.Paragraphs)
	assert.Equal(t, 3, r.Sentences)
}

func TestBuildTextReport_GoodEssayScoresWell(t *testing.T) {
	t.Parallel()
	para := strings.Repeat("A sociedade contemporânea enfrenta desafios complexos relacionados. ", 15)
	text := para + "\n\n" + para + " Portanto, medidas estruturais são necessárias."
	r := BuildTextReport(text, 95)

	assert.Equal(t, "alta", r.Quality.Level)
	assert.GreaterOrEqual(t, r.QuickScore, 40.0)
	assert.Contains(t, r.Strengths, "Texto com extensão adequada para uma redação")
	assert.Contains(t, r.Strengths, "Conectores argumentativos identificados")
	assert.Empty(t, r.Issues)
}

func TestBuildTextReport_FragmentedOCRFlagged(t *testing.T) {
	t.Parallel()
	// mostly 1-2 char fragments, no punctuation
	text := strings.TrimSpace(strings.Repeat("a b c de f g ", 10))
	r := BuildTextReport(text, 90)

	assert.NotEqual(t, "alta", r.Quality.Level)
	assert.NotEmpty(t, r.Quality.Problems)
	assert.NotEmpty(t, r.Suggestions)
}

func TestBuildTextReport_RepeatedRunsFlagged(t *testing.T) {
	t.Parallel()
	text := "O parágrafo começa bem estruturado mas degenera em lalalalalala antes de retomar o argumento central."
	r := BuildTextReport(text, 95)
	assert.Contains(t, r.Quality.Problems, "Padrões repetitivos detectados")
}

func TestHasRepeatedRuns(t *testing.T) {
	t.Parallel()
	assert.True(t, hasRepeatedRuns("abcabcabc"))
	assert.True(t, hasRepeatedRuns("texto com nanana no meio"))
	assert.False(t, hasRepeatedRuns("uma frase comum sem estalos"))
	assert.False(t, hasRepeatedRuns(""))
}

func TestBuildTextReport_EngineConfidenceCapsQuality(t *testing.T) {
	t.Parallel()
	text := "Um texto razoável, com pontuação adequada e palavras inteiras no lugar certo."
	r := BuildTextReport(text, 30)
	assert.Equal(t, "baixa", r.Quality.Level)
}
