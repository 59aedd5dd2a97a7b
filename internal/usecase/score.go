package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// Persona is one grader profile for the consensus scorer. Focus is
// appended to the base rubric prompt to bias what the grader weighs.
type Persona struct {
	Name  string `yaml:"name"`
	Focus string `yaml:"focus"`
}

// DefaultPersonas are the built-in grader profiles used when no personas
// file is configured.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			Name:  "norma-culta",
			Focus: "Seja especialmente rigoroso na Competência I: desvios de norma culta, convenções da escrita e precisão vocabular pesam mais na sua avaliação.",
		},
		{
			Name:  "argumentacao",
			Focus: "Concentre sua atenção nas Competências II e III: profundidade do repertório sociocultural, projeto de texto e progressão argumentativa.",
		},
		{
			Name:  "proposta",
			Focus: "Avalie com lupa a Competência V: a proposta de intervenção precisa dos 5 elementos (agente, ação, meio, finalidade, detalhamento) e de articulação real com a discussão.",
		},
	}
}

// LoadPersonas reads grader personas from a YAML file, falling back to
// the defaults when the file is absent or empty.
func LoadPersonas(path string) []Persona {
	if path == "" {
		return DefaultPersonas()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		slog.Info("personas file not found, using defaults", slog.String("path", path))
		return DefaultPersonas()
	}
	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil || len(doc.Personas) == 0 {
		slog.Warn("personas file invalid, using defaults", slog.String("path", path), slog.Any("error", err))
		return DefaultPersonas()
	}
	return doc.Personas
}

// ScoreService produces a rubric score by fanning out one LLM grading
// request per persona and averaging the successful attempts.
type ScoreService struct {
	LLM      domain.LLMClient
	Cleaner  JSONCleaner
	Personas []Persona
}

// NewScoreService constructs a ScoreService with its dependencies.
func NewScoreService(llm domain.LLMClient, cleaner JSONCleaner, personas []Persona) ScoreService {
	if len(personas) == 0 {
		personas = DefaultPersonas()
	}
	return ScoreService{LLM: llm, Cleaner: cleaner, Personas: personas}
}

const rubricSystemPrompt = `Você é um corretor oficial de redações do ENEM. Avalie o texto segundo as 5 competências, atribuindo a cada uma exclusivamente uma nota do conjunto {0, 40, 80, 120, 160, 200}.
Responda APENAS com um objeto JSON exatamente neste formato:
{
  "notaFinal1000": <soma exata das 5 notas>,
  "tesePrincipal": "<tese central defendida no texto>",
  "tituloSugerido": "<título coerente com o tema e a tese>",
  "comentarioGeral": "<parágrafo de feedback geral com o principal ponto positivo e a principal área a desenvolver>",
  "competencias": {
    "c1": {"nome": "Competência I: Domínio da norma culta", "nota": <0-200>, "comentario": "<justificativa>", "pontosFortes": ["..."], "pontosAMelhorar": ["..."]},
    "c2": {"nome": "Competência II: Compreensão do tema e repertório", "nota": <0-200>, "comentario": "<justificativa>", "pontosFortes": ["..."], "pontosAMelhorar": ["..."]},
    "c3": {"nome": "Competência III: Coerência e argumentação", "nota": <0-200>, "comentario": "<justificativa>", "pontosFortes": ["..."], "pontosAMelhorar": ["..."]},
    "c4": {"nome": "Competência IV: Coesão textual", "nota": <0-200>, "comentario": "<justificativa>", "pontosFortes": ["..."], "pontosAMelhorar": ["..."]},
    "c5": {"nome": "Competência V: Proposta de intervenção", "nota": <0-200>, "comentario": "<justificativa>", "pontosFortes": ["..."], "pontosAMelhorar": ["..."]}
  }
}
INSTRUÇÃO CRÍTICA: "notaFinal1000" DEVE ser a soma exata das 5 notas. Verifique sua matemática antes de responder.`

const scoreMaxTokens = 2000

type competencyPayload struct {
	Nome            string   `json:"nome"`
	Nota            *float64 `json:"nota"`
	Pontuacao       *float64 `json:"pontuacao"`
	Comentario      string   `json:"comentario"`
	PontosFortes    []string `json:"pontosFortes"`
	PontosAMelhorar []string `json:"pontosAMelhorar"`
}

func (c competencyPayload) score() (float64, bool) {
	// alternate key seen across model versions
	if c.Nota != nil {
		return *c.Nota, true
	}
	if c.Pontuacao != nil {
		return *c.Pontuacao, true
	}
	return 0, false
}

type rubricPayload struct {
	NotaFinal1000   float64                      `json:"notaFinal1000"`
	TesePrincipal   string                       `json:"tesePrincipal"`
	TituloSugerido  string                       `json:"tituloSugerido"`
	ComentarioGeral string                       `json:"comentarioGeral"`
	Competencias    map[string]competencyPayload `json:"competencias"`
}

// attempt is one persona's validated grading.
type attempt struct {
	persona string
	scores  [domain.RubricCompetencies]int
	rubric  rubricPayload
}

// Score grades text with every persona concurrently and merges the
// successful attempts. It fails with domain.ErrNoValidAnalysis only
// when every persona attempt is unusable.
func (s ScoreService) Score(ctx domain.Context, text string) (domain.RubricResult, error) {
	if len([]rune(text)) < domain.MinAnalyzableTextLen {
		return domain.RubricResult{}, fmt.Errorf("%w: text below %d characters is insufficient for analysis",
			domain.ErrInvalidArgument, domain.MinAnalyzableTextLen)
	}

	attempts := make([]*attempt, len(s.Personas))
	var wg sync.WaitGroup
	for i, p := range s.Personas {
		wg.Add(1)
		go func(i int, p Persona) {
			defer wg.Done()
			a, err := s.gradeOnce(ctx, p, text)
			if err != nil {
				slog.Warn("grading attempt discarded",
					slog.String("persona", p.Name), slog.Any("error", err))
				return
			}
			attempts[i] = a
		}(i, p)
	}
	wg.Wait()

	valid := make([]*attempt, 0, len(attempts))
	for _, a := range attempts {
		if a != nil {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return domain.RubricResult{}, fmt.Errorf("op=usecase.Score: %w", domain.ErrNoValidAnalysis)
	}
	return consensus(valid), nil
}

// gradeOnce runs a single persona grading call and validates its shape.
func (s ScoreService) gradeOnce(ctx domain.Context, p Persona, text string) (*attempt, error) {
	raw, err := s.LLM.Complete(ctx, rubricSystemPrompt+"\n\n"+p.Focus, text, scoreMaxTokens)
	if err != nil {
		return nil, err
	}
	cleaned, err := s.Cleaner.CleanJSONResponse(raw)
	if err != nil {
		return nil, err
	}
	var payload rubricPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}

	a := &attempt{persona: p.Name, rubric: payload}
	var sum int
	for i := 0; i < domain.RubricCompetencies; i++ {
		comp, ok := payload.Competencias[fmt.Sprintf("c%d", i+1)]
		if !ok {
			return nil, fmt.Errorf("%w: missing competency c%d", domain.ErrSchemaInvalid, i+1)
		}
		raw, ok := comp.score()
		if !ok {
			return nil, fmt.Errorf("%w: competency c%d has no score", domain.ErrSchemaInvalid, i+1)
		}
		score := snapToStep(raw)
		a.scores[i] = score
		sum += score
	}
	// never trust the model's reported sum
	if int(payload.NotaFinal1000) != sum {
		slog.Debug("correcting model-reported total",
			slog.String("persona", p.Name),
			slog.Int("reported", int(payload.NotaFinal1000)), slog.Int("actual", sum))
		a.rubric.NotaFinal1000 = float64(sum)
	}
	return a, nil
}

// consensus averages competency scores element-wise across attempts,
// rounds each to the rubric step, and recomputes the total from parts.
func consensus(valid []*attempt) domain.RubricResult {
	best := valid[0]
	for _, a := range valid[1:] {
		if len(a.rubric.ComentarioGeral) > len(best.rubric.ComentarioGeral) {
			best = a
		}
	}

	var res domain.RubricResult
	res.Thesis = best.rubric.TesePrincipal
	res.SuggestedTitle = best.rubric.TituloSugerido
	res.OverallComment = best.rubric.ComentarioGeral

	total := 0
	for i := 0; i < domain.RubricCompetencies; i++ {
		var sum float64
		for _, a := range valid {
			sum += float64(a.scores[i])
		}
		score := snapToStep(sum / float64(len(valid)))
		total += score

		comp := best.rubric.Competencias[fmt.Sprintf("c%d", i+1)]
		res.Competencies[i] = domain.CompetencyResult{
			Name:       comp.Nome,
			Score:      score,
			Comment:    comp.Comentario,
			Strengths:  comp.PontosFortes,
			Weaknesses: comp.PontosAMelhorar,
		}
	}
	res.Total = total
	return res
}

// snapToStep rounds to the nearest rubric step and clamps to [0, 200].
func snapToStep(v float64) int {
	snapped := int(math.Round(v/domain.RubricStep)) * domain.RubricStep
	if snapped < 0 {
		return 0
	}
	if snapped > domain.RubricMax {
		return domain.RubricMax
	}
	return snapped
}
