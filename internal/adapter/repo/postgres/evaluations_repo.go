package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// EvaluationRepo persists human per-competency evaluations.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Create inserts a new evaluation and returns its id. The unique index
// on (essay_id, competency) turns duplicates into ErrConflict.
func (r *EvaluationRepo) Create(ctx domain.Context, ev domain.Evaluation) (string, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Create")
	defer span.End()
	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO evaluations (id, essay_id, competency, score, comment, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, ev.EssayID, ev.Competency, ev.Score, ev.Comment, ev.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("op=evaluation.create: %w", domain.ErrConflict)
		}
		return "", fmt.Errorf("op=evaluation.create: %w", err)
	}
	return id, nil
}

// Get loads an evaluation by id.
func (r *EvaluationRepo) Get(ctx domain.Context, id string) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Get")
	defer span.End()
	q := `SELECT id, essay_id, competency, score, comment, created_at FROM evaluations WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var ev domain.Evaluation
	if err := row.Scan(&ev.ID, &ev.EssayID, &ev.Competency, &ev.Score, &ev.Comment, &ev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", domain.ErrNotFound)
		}
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", err)
	}
	return ev, nil
}

// ListByEssay returns an essay's evaluations ordered by competency.
func (r *EvaluationRepo) ListByEssay(ctx domain.Context, essayID string) ([]domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.ListByEssay")
	defer span.End()
	q := `SELECT id, essay_id, competency, score, comment, created_at FROM evaluations WHERE essay_id=$1 ORDER BY competency`
	rows, err := r.Pool.Query(ctx, q, essayID)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Evaluation
	for rows.Next() {
		var ev domain.Evaluation
		if err := rows.Scan(&ev.ID, &ev.EssayID, &ev.Competency, &ev.Score, &ev.Comment, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=evaluation.list: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	return out, nil
}

// FindByCompetency loads the evaluation for one competency of an essay.
func (r *EvaluationRepo) FindByCompetency(ctx domain.Context, essayID string, competency int) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.FindByCompetency")
	defer span.End()
	q := `SELECT id, essay_id, competency, score, comment, created_at FROM evaluations WHERE essay_id=$1 AND competency=$2`
	row := r.Pool.QueryRow(ctx, q, essayID, competency)
	var ev domain.Evaluation
	if err := row.Scan(&ev.ID, &ev.EssayID, &ev.Competency, &ev.Score, &ev.Comment, &ev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.find: %w", domain.ErrNotFound)
		}
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.find: %w", err)
	}
	return ev, nil
}

// Update rewrites an evaluation's competency, score, and comment.
func (r *EvaluationRepo) Update(ctx domain.Context, ev domain.Evaluation) error {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Update")
	defer span.End()
	q := `UPDATE evaluations SET competency=$2, score=$3, comment=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, ev.ID, ev.Competency, ev.Score, ev.Comment)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("op=evaluation.update: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=evaluation.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=evaluation.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes an evaluation by id.
func (r *EvaluationRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM evaluations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=evaluation.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=evaluation.delete: %w", domain.ErrNotFound)
	}
	return nil
}
