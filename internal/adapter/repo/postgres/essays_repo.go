package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// EssayRepo persists and loads essays using a minimal pgx pool.
type EssayRepo struct{ Pool PgxPool }

// NewEssayRepo constructs an EssayRepo with the given pool.
func NewEssayRepo(p PgxPool) *EssayRepo { return &EssayRepo{Pool: p} }

const essayColumns = `id, title, image_ref, extracted_text, ocr_confidence, ocr_engine, generated_score, final_score, user_id, created_at, updated_at`

func scanEssay(row pgx.Row) (domain.Essay, error) {
	var e domain.Essay
	err := row.Scan(&e.ID, &e.Title, &e.ImageRef, &e.ExtractedText, &e.OCRConfidence,
		&e.OCREngine, &e.GeneratedScore, &e.FinalScore, &e.UserID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// Create inserts a new essay and returns its id.
func (r *EssayRepo) Create(ctx domain.Context, e domain.Essay) (string, error) {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.Create")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO essays (id, title, image_ref, extracted_text, ocr_confidence, ocr_engine, generated_score, final_score, user_id, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q, id, e.Title, e.ImageRef, e.ExtractedText, e.OCRConfidence,
		e.OCREngine, e.GeneratedScore, e.FinalScore, e.UserID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("op=essay.create: %w", err)
	}
	return id, nil
}

// Get loads an essay by id, scoped to its owner.
func (r *EssayRepo) Get(ctx domain.Context, id, userID string) (domain.Essay, error) {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.Get")
	defer span.End()
	q := `SELECT ` + essayColumns + ` FROM essays WHERE id=$1 AND user_id=$2`
	e, err := scanEssay(r.Pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Essay{}, fmt.Errorf("op=essay.get: %w", domain.ErrNotFound)
		}
		return domain.Essay{}, fmt.Errorf("op=essay.get: %w", err)
	}
	return e, nil
}

// GetByID loads an essay by id regardless of owner, used by background
// jobs that hold no user context.
func (r *EssayRepo) GetByID(ctx domain.Context, id string) (domain.Essay, error) {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.GetByID")
	defer span.End()
	q := `SELECT ` + essayColumns + ` FROM essays WHERE id=$1`
	e, err := scanEssay(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Essay{}, fmt.Errorf("op=essay.get_by_id: %w", domain.ErrNotFound)
		}
		return domain.Essay{}, fmt.Errorf("op=essay.get_by_id: %w", err)
	}
	return e, nil
}

// List returns a user's essays, newest first.
func (r *EssayRepo) List(ctx domain.Context, userID string) ([]domain.Essay, error) {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.List")
	defer span.End()
	q := `SELECT ` + essayColumns + ` FROM essays WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=essay.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Essay
	for rows.Next() {
		e, err := scanEssay(rows)
		if err != nil {
			return nil, fmt.Errorf("op=essay.list: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=essay.list: %w", err)
	}
	return out, nil
}

// Update rewrites the mutable fields of an essay.
func (r *EssayRepo) Update(ctx domain.Context, e domain.Essay) error {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.Update")
	defer span.End()
	q := `UPDATE essays SET title=$2, image_ref=$3, extracted_text=$4, ocr_confidence=$5, ocr_engine=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, e.ID, e.Title, e.ImageRef, e.ExtractedText, e.OCRConfidence, e.OCREngine, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=essay.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=essay.update: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateScores sets the generated and/or final score.
func (r *EssayRepo) UpdateScores(ctx domain.Context, id string, generated, final *float64) error {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.UpdateScores")
	defer span.End()
	q := `UPDATE essays SET generated_score=$2, final_score=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, generated, final, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=essay.update_scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=essay.update_scores: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateExtractedText replaces the essay's extracted text.
func (r *EssayRepo) UpdateExtractedText(ctx domain.Context, id, text string) error {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.UpdateExtractedText")
	defer span.End()
	q := `UPDATE essays SET extracted_text=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=essay.update_text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=essay.update_text: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes an essay owned by userID. Evaluations cascade.
func (r *EssayRepo) Delete(ctx domain.Context, id, userID string) error {
	tracer := otel.Tracer("repo.essays")
	ctx, span := tracer.Start(ctx, "essays.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM essays WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("op=essay.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=essay.delete: %w", domain.ErrNotFound)
	}
	return nil
}
