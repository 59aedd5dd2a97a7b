// Package domain holds the core entities and ports of the essay grading
// service. Adapters and usecases depend on this package, never the other
// way around.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrNoValidAnalysis = errors.New("no valid analysis")
	ErrInternal        = errors.New("internal error")
)

// MinAnalyzableTextLen is the minimum extracted-text length accepted for a
// rubric analysis. Shorter texts are rejected before any provider call.
const MinAnalyzableTextLen = 50

// RubricStep is the discrete point step of the ENEM competency scale.
// Valid competency scores are multiples of RubricStep in [0, RubricMax].
const (
	RubricStep         = 40
	RubricMax          = 200
	RubricCompetencies = 5
)

// User owns essays. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Essay is a submitted handwritten essay. ExtractedText is empty until OCR
// succeeds; GeneratedScore is the automatic score, FinalScore may combine
// it with human evaluations.
type Essay struct {
	ID             string
	Title          string
	ImageRef       string
	ExtractedText  string
	OCRConfidence  int
	OCREngine      string
	GeneratedScore *float64
	FinalScore     *float64
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Evaluation is a human grader's score for one competency of one essay.
// Invariant: at most one evaluation per (essay, competency) pair.
type Evaluation struct {
	ID         string
	EssayID    string
	Competency int // 1..5
	Score      int // 0..200
	Comment    string
	CreatedAt  time.Time
}

// OCRResult is the outcome of one OCR pass over an essay image.
type OCRResult struct {
	Text       string
	Confidence int // 0..100
	Engine     string
}

// Correction is a single suggested fix produced by the text formatter.
// Corrections are suggested, never silently applied.
type Correction struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason"`
}

// FormatResult is the formatter output: cleaned text plus suggestions.
type FormatResult struct {
	FormattedText string       `json:"formatted_text"`
	Corrections   []Correction `json:"corrections"`
}

// CompetencyResult holds the score and narrative for one ENEM competency.
type CompetencyResult struct {
	Name       string   `json:"name"`
	Score      int      `json:"score"`
	Comment    string   `json:"comment"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// RubricResult is a full ENEM-style score: five competencies on the
// discrete {0,40,...,200} scale. Total is always the sum of the parts.
type RubricResult struct {
	Total          int                                  `json:"total"`
	Thesis         string                               `json:"thesis"`
	SuggestedTitle string                               `json:"suggested_title"`
	OverallComment string                               `json:"overall_comment"`
	Competencies   [RubricCompetencies]CompetencyResult `json:"competencies"`
}

// OCRQuality is a heuristic estimate of how trustworthy the extracted
// text is, derived without any provider call.
type OCRQuality struct {
	Level      string   `json:"level"` // low, medium, high
	Problems   []string `json:"problems"`
	Confidence int      `json:"confidence"` // 0..100
}

// TextReport carries local text statistics and heuristic feedback.
type TextReport struct {
	Words       int        `json:"words"`
	Characters  int        `json:"characters"`
	Paragraphs  int        `json:"paragraphs"`
	Sentences   int        `json:"sentences"`
	QuickScore  float64    `json:"quick_score"` // 0..100
	Quality     OCRQuality `json:"ocr_quality"`
	Strengths   []string   `json:"strengths"`
	Issues      []string   `json:"issues"`
	Suggestions []string   `json:"suggestions"`
}

// AnalysisResult is the completed output of the analysis pipeline for one
// essay. It is ephemeral: cached with a TTL, never persisted as a row.
type AnalysisResult struct {
	FormattedText string       `json:"formatted_text"`
	Corrections   []Correction `json:"corrections"`
	Rubric        RubricResult `json:"rubric"`
	Report        TextReport   `json:"report"`
	CompletedAt   time.Time    `json:"completed_at"`
}

// AnalysisState is the poll-facing state of an analysis request.
type AnalysisState string

const (
	AnalysisStarted   AnalysisState = "started"
	AnalysisRunning   AnalysisState = "running"
	AnalysisCompleted AnalysisState = "completed"
)

// AnalysisStatus is returned by the coordinator on every poll. Result is
// non-nil only when State is AnalysisCompleted.
type AnalysisStatus struct {
	State  AnalysisState
	Result *AnalysisResult
}

// ValidCompetencyScore reports whether n is on the discrete rubric scale.
func ValidCompetencyScore(n int) bool {
	return n >= 0 && n <= RubricMax && n%RubricStep == 0
}

// Repositories (ports)

type UserRepository interface {
	Create(ctx Context, u User) (string, error)
	GetByEmail(ctx Context, email string) (User, error)
	Get(ctx Context, id string) (User, error)
}

type EssayRepository interface {
	Create(ctx Context, e Essay) (string, error)
	Get(ctx Context, id, userID string) (Essay, error)
	GetByID(ctx Context, id string) (Essay, error)
	List(ctx Context, userID string) ([]Essay, error)
	Update(ctx Context, e Essay) error
	// UpdateScores sets the generated and/or final score; returns
	// ErrNotFound when the essay no longer exists.
	UpdateScores(ctx Context, id string, generated, final *float64) error
	UpdateExtractedText(ctx Context, id, text string) error
	Delete(ctx Context, id, userID string) error
}

type EvaluationRepository interface {
	Create(ctx Context, ev Evaluation) (string, error)
	Get(ctx Context, id string) (Evaluation, error)
	ListByEssay(ctx Context, essayID string) ([]Evaluation, error)
	FindByCompetency(ctx Context, essayID string, competency int) (Evaluation, error)
	Update(ctx Context, ev Evaluation) error
	Delete(ctx Context, id string) error
}

// OCRClient (port) extracts text from an essay image. Implementations may
// chain several engines; they must not return an empty engine name.
type OCRClient interface {
	ExtractText(ctx Context, image []byte) (OCRResult, error)
}

// LLMClient (port) wraps a chat-completion endpoint.
type LLMClient interface {
	Complete(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Context aliases context.Context so domain signatures stay compact.
type Context = context.Context
