package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/observability"
	obsctx "github.com/ezsentencefix/ez-sentence-fix/internal/observability"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// AnalysisStore persists completed analyses and coordinates the
// per-essay single-flight lock. The in-memory implementation covers a
// single instance; the Redis implementation extends both guarantees
// across replicas.
type AnalysisStore interface {
	GetResult(ctx context.Context, key string) (domain.AnalysisResult, bool, error)
	SetResult(ctx context.Context, key string, res domain.AnalysisResult, ttl time.Duration) error
	DeleteResult(ctx context.Context, key string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// AnalysisService coordinates the essay analysis pipeline: at most one
// formatting+scoring run per essay at a time, with completed results
// cached for TTL so aggressive polling never duplicates LLM work.
type AnalysisService struct {
	Store      AnalysisStore
	Formatter  FormatService
	Scorer     ScoreService
	Essays     domain.EssayRepository
	Evals      domain.EvaluationRepository
	TTL        time.Duration
	JobTimeout time.Duration
}

// NewAnalysisService constructs an AnalysisService with its dependencies.
func NewAnalysisService(store AnalysisStore, f FormatService, sc ScoreService,
	essays domain.EssayRepository, evals domain.EvaluationRepository,
	ttl, jobTimeout time.Duration) *AnalysisService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	return &AnalysisService{
		Store:      store,
		Formatter:  f,
		Scorer:     sc,
		Essays:     essays,
		Evals:      evals,
		TTL:        ttl,
		JobTimeout: jobTimeout,
	}
}

// Request triggers or polls the analysis for an essay. It returns
// completed with the cached result, running while a job is in flight,
// or started after scheduling a fresh background job.
func (s *AnalysisService) Request(ctx domain.Context, essayID, text string) (domain.AnalysisStatus, error) {
	if len([]rune(text)) < domain.MinAnalyzableTextLen {
		return domain.AnalysisStatus{}, fmt.Errorf("%w: text below %d characters is insufficient for analysis",
			domain.ErrInvalidArgument, domain.MinAnalyzableTextLen)
	}

	if res, ok, err := s.Store.GetResult(ctx, essayID); err != nil {
		return domain.AnalysisStatus{}, fmt.Errorf("op=analysis.Request: %w", err)
	} else if ok {
		observability.AnalysisCacheHits.Inc()
		return domain.AnalysisStatus{State: domain.AnalysisCompleted, Result: &res}, nil
	}

	// The lock outlives the job timeout slightly so a crashed job frees
	// itself rather than wedging the essay forever.
	locked, err := s.Store.TryLock(ctx, essayID, s.JobTimeout+30*time.Second)
	if err != nil {
		return domain.AnalysisStatus{}, fmt.Errorf("op=analysis.Request: %w", err)
	}
	if !locked {
		return domain.AnalysisStatus{State: domain.AnalysisRunning}, nil
	}

	// Detach from the request context: the job must run to completion
	// even if the polling client disconnects, because its result is
	// cached for every other caller.
	jobCtx := context.WithoutCancel(ctx)
	observability.AnalysisJobsStarted.Inc()
	go s.runJob(jobCtx, essayID, text)

	return domain.AnalysisStatus{State: domain.AnalysisStarted}, nil
}

func (s *AnalysisService) runJob(ctx context.Context, essayID, text string) {
	ctx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()
	// The registry entry must go away on every outcome so the next poll
	// can retry after a failure.
	defer func() {
		if err := s.Store.Unlock(context.WithoutCancel(ctx), essayID); err != nil {
			slog.Error("analysis unlock failed", slog.String("essay_id", essayID), slog.Any("error", err))
		}
	}()

	lg := obsctx.LoggerFromContext(ctx).With(slog.String("essay_id", essayID))
	start := time.Now()

	formatted := s.Formatter.Format(ctx, text)
	rubric, err := s.Scorer.Score(ctx, formatted.FormattedText)
	if err != nil {
		observability.AnalysisJobsFailed.Inc()
		lg.Error("analysis job failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		return
	}

	result := domain.AnalysisResult{
		FormattedText: formatted.FormattedText,
		Corrections:   formatted.Corrections,
		Rubric:        rubric,
		Report:        buildReportForEssay(ctx, s.Essays, essayID, formatted.FormattedText),
		CompletedAt:   time.Now().UTC(),
	}
	if err := s.Store.SetResult(ctx, essayID, result, s.TTL); err != nil {
		observability.AnalysisJobsFailed.Inc()
		lg.Error("analysis result cache write failed", slog.Any("error", err))
		return
	}

	s.persistScore(ctx, essayID, rubric.Total, lg)

	observability.AnalysisJobsCompleted.Inc()
	observability.RubricTotalHistogram.Observe(float64(rubric.Total))
	lg.Info("analysis job completed",
		slog.Int("total", rubric.Total), slog.Duration("elapsed", time.Since(start)))
}

// persistScore writes the generated score back onto the essay. The essay
// may have been deleted while the job ran; that is a benign no-op.
func (s *AnalysisService) persistScore(ctx context.Context, essayID string, total int, lg *slog.Logger) {
	generated := float64(total)
	final, err := ComputeFinalScore(ctx, s.Evals, essayID, &generated)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		lg.Warn("final score recompute failed", slog.Any("error", err))
		final = &generated
	}
	if err := s.Essays.UpdateScores(ctx, essayID, &generated, final); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			lg.Info("essay deleted mid-analysis, skipping score persist")
			return
		}
		lg.Warn("score persist failed", slog.Any("error", err))
	}
}

// Purge removes the cache and lock entries for an essay, called on
// essay deletion so a recreated identifier starts from a clean slate.
func (s *AnalysisService) Purge(ctx domain.Context, essayID string) error {
	if err := s.Store.DeleteResult(ctx, essayID); err != nil {
		return fmt.Errorf("op=analysis.Purge: %w", err)
	}
	return nil
}

// RunSync formats and scores ad hoc text within the calling request,
// bypassing the cache and the single-flight registry entirely.
func (s *AnalysisService) RunSync(ctx domain.Context, text string) (domain.FormatResult, domain.RubricResult, error) {
	if len([]rune(text)) < domain.MinAnalyzableTextLen {
		return domain.FormatResult{}, domain.RubricResult{}, fmt.Errorf("%w: text below %d characters is insufficient for analysis",
			domain.ErrInvalidArgument, domain.MinAnalyzableTextLen)
	}
	formatted := s.Formatter.Format(ctx, text)
	rubric, err := s.Scorer.Score(ctx, formatted.FormattedText)
	if err != nil {
		return domain.FormatResult{}, domain.RubricResult{}, err
	}
	return formatted, rubric, nil
}

// buildReportForEssay assembles the heuristic text report, pulling the
// OCR confidence off the essay when it still exists.
func buildReportForEssay(ctx context.Context, essays domain.EssayRepository, essayID, text string) domain.TextReport {
	conf := 100.0
	if essays != nil {
		if e, err := essays.GetByID(ctx, essayID); err == nil && e.OCRConfidence > 0 {
			conf = float64(e.OCRConfidence)
		}
	}
	return BuildTextReport(text, conf)
}
