package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// EvaluationService manages human per-competency evaluations and keeps
// the essay's final score consistent with them.
type EvaluationService struct {
	Evals  domain.EvaluationRepository
	Essays domain.EssayRepository
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(evals domain.EvaluationRepository, essays domain.EssayRepository) EvaluationService {
	return EvaluationService{Evals: evals, Essays: essays}
}

func validateEvaluation(competency, score int) error {
	if competency < 1 || competency > domain.RubricCompetencies {
		return fmt.Errorf("%w: competency must be between 1 and %d",
			domain.ErrInvalidArgument, domain.RubricCompetencies)
	}
	if score < 0 || score > domain.RubricMax {
		return fmt.Errorf("%w: score must be between 0 and %d",
			domain.ErrInvalidArgument, domain.RubricMax)
	}
	return nil
}

// Create adds a human evaluation for one competency of an owned essay.
// At most one evaluation may exist per (essay, competency) pair.
func (s EvaluationService) Create(ctx domain.Context, userID, essayID string, competency, score int, comment string) (domain.Evaluation, error) {
	if err := validateEvaluation(competency, score); err != nil {
		return domain.Evaluation{}, err
	}
	if _, err := s.Essays.Get(ctx, essayID, userID); err != nil {
		return domain.Evaluation{}, err
	}
	if _, err := s.Evals.FindByCompetency(ctx, essayID, competency); err == nil {
		return domain.Evaluation{}, fmt.Errorf("%w: competency %d already evaluated for this essay",
			domain.ErrConflict, competency)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Evaluation{}, err
	}

	ev := domain.Evaluation{
		EssayID:    essayID,
		Competency: competency,
		Score:      score,
		Comment:    comment,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := s.Evals.Create(ctx, ev)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.Create: %w", err)
	}
	ev.ID = id
	if err := s.recomputeFinal(ctx, essayID); err != nil {
		return domain.Evaluation{}, err
	}
	return ev, nil
}

// ListByEssay returns the evaluations of an owned essay.
func (s EvaluationService) ListByEssay(ctx domain.Context, userID, essayID string) ([]domain.Evaluation, error) {
	if _, err := s.Essays.Get(ctx, essayID, userID); err != nil {
		return nil, err
	}
	return s.Evals.ListByEssay(ctx, essayID)
}

// Update changes an evaluation's competency, score, or comment.
func (s EvaluationService) Update(ctx domain.Context, userID, id string, competency, score int, comment string) (domain.Evaluation, error) {
	if err := validateEvaluation(competency, score); err != nil {
		return domain.Evaluation{}, err
	}
	ev, err := s.Evals.Get(ctx, id)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if _, err := s.Essays.Get(ctx, ev.EssayID, userID); err != nil {
		return domain.Evaluation{}, err
	}
	if competency != ev.Competency {
		if existing, err := s.Evals.FindByCompetency(ctx, ev.EssayID, competency); err == nil && existing.ID != id {
			return domain.Evaluation{}, fmt.Errorf("%w: competency %d already evaluated for this essay",
				domain.ErrConflict, competency)
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Evaluation{}, err
		}
	}

	ev.Competency = competency
	ev.Score = score
	ev.Comment = comment
	if err := s.Evals.Update(ctx, ev); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.Update: %w", err)
	}
	if err := s.recomputeFinal(ctx, ev.EssayID); err != nil {
		return domain.Evaluation{}, err
	}
	return ev, nil
}

// Delete removes an evaluation and refreshes the essay's final score.
func (s EvaluationService) Delete(ctx domain.Context, userID, id string) error {
	ev, err := s.Evals.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.Essays.Get(ctx, ev.EssayID, userID); err != nil {
		return err
	}
	if err := s.Evals.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=evaluation.Delete: %w", err)
	}
	return s.recomputeFinal(ctx, ev.EssayID)
}

func (s EvaluationService) recomputeFinal(ctx domain.Context, essayID string) error {
	e, err := s.Essays.GetByID(ctx, essayID)
	if err != nil {
		return err
	}
	final, err := ComputeFinalScore(ctx, s.Evals, essayID, e.GeneratedScore)
	if err != nil {
		return err
	}
	if err := s.Essays.UpdateScores(ctx, essayID, e.GeneratedScore, final); err != nil {
		return fmt.Errorf("op=evaluation.recomputeFinal: %w", err)
	}
	return nil
}

// ComputeFinalScore combines the AI-generated score with the mean of the
// human per-competency evaluations. When both exist the final score is
// their arithmetic mean; otherwise whichever one exists; nil when neither
// does.
func ComputeFinalScore(ctx context.Context, evals domain.EvaluationRepository, essayID string, generated *float64) (*float64, error) {
	list, err := evals.ListByEssay(ctx, essayID)
	if err != nil {
		return nil, err
	}
	var humanAvg *float64
	if len(list) > 0 {
		sum := 0.0
		for _, ev := range list {
			sum += float64(ev.Score)
		}
		avg := sum / float64(len(list))
		humanAvg = &avg
	}

	switch {
	case generated != nil && humanAvg != nil:
		v := (*generated + *humanAvg) / 2
		return &v, nil
	case generated != nil:
		v := *generated
		return &v, nil
	case humanAvg != nil:
		v := *humanAvg
		return &v, nil
	default:
		return nil, nil
	}
}
