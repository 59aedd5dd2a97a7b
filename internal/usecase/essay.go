package usecase

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// EssayService handles essay lifecycle: creation with synchronous OCR,
// reads, updates with re-extraction on image change, and deletion with
// analysis cleanup.
type EssayService struct {
	Essays   domain.EssayRepository
	OCR      domain.OCRClient
	Analysis *AnalysisService
	Format   FormatService
	// FormatOnCreate runs the LLM formatter over freshly extracted text
	// during creation instead of waiting for the first analysis.
	FormatOnCreate bool
}

// NewEssayService constructs an EssayService with its dependencies.
func NewEssayService(essays domain.EssayRepository, ocr domain.OCRClient,
	analysis *AnalysisService, format FormatService, formatOnCreate bool) EssayService {
	return EssayService{
		Essays:         essays,
		OCR:            ocr,
		Analysis:       analysis,
		Format:         format,
		FormatOnCreate: formatOnCreate,
	}
}

// Create stores a new essay and runs OCR on its image within the
// request. OCR failure is non-fatal: the essay is still created with
// empty text for later manual correction or re-upload.
func (s EssayService) Create(ctx domain.Context, userID, title, imageRef string, image []byte) (domain.Essay, error) {
	if userID == "" {
		return domain.Essay{}, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	if title == "" {
		return domain.Essay{}, fmt.Errorf("%w: title required", domain.ErrInvalidArgument)
	}

	e := domain.Essay{
		Title:     title,
		ImageRef:  imageRef,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if len(image) > 0 {
		res, err := s.OCR.ExtractText(ctx, image)
		if err != nil {
			slog.Warn("ocr failed during essay creation, storing empty text",
				slog.String("user_id", userID), slog.Any("error", err))
		} else {
			e.ExtractedText = res.Text
			e.OCRConfidence = res.Confidence
			e.OCREngine = res.Engine
			if s.FormatOnCreate && len([]rune(res.Text)) >= domain.MinAnalyzableTextLen {
				e.ExtractedText = s.Format.Format(ctx, res.Text).FormattedText
			}
		}
	}

	id, err := s.Essays.Create(ctx, e)
	if err != nil {
		return domain.Essay{}, fmt.Errorf("op=essay.Create: %w", err)
	}
	e.ID = id
	return e, nil
}

// Get returns an essay owned by userID.
func (s EssayService) Get(ctx domain.Context, id, userID string) (domain.Essay, error) {
	return s.Essays.Get(ctx, id, userID)
}

// List returns all essays owned by userID, newest first.
func (s EssayService) List(ctx domain.Context, userID string) ([]domain.Essay, error) {
	return s.Essays.List(ctx, userID)
}

// Update changes the essay title, text, or image. A new image triggers
// re-extraction; manually edited text is stored as provided.
func (s EssayService) Update(ctx domain.Context, id, userID, title, text, imageRef string, image []byte) (domain.Essay, error) {
	e, err := s.Essays.Get(ctx, id, userID)
	if err != nil {
		return domain.Essay{}, err
	}
	if title != "" {
		e.Title = title
	}
	if text != "" {
		e.ExtractedText = text
	}
	if len(image) > 0 {
		res, err := s.OCR.ExtractText(ctx, image)
		if err != nil {
			return domain.Essay{}, fmt.Errorf("op=essay.Update: %w", err)
		}
		e.ImageRef = imageRef
		e.ExtractedText = res.Text
		e.OCRConfidence = res.Confidence
		e.OCREngine = res.Engine
	}
	e.UpdatedAt = time.Now().UTC()
	if err := s.Essays.Update(ctx, e); err != nil {
		return domain.Essay{}, fmt.Errorf("op=essay.Update: %w", err)
	}
	// Text changed under a possibly cached analysis; drop it so the next
	// poll grades the current version.
	if (text != "" || len(image) > 0) && s.Analysis != nil {
		if err := s.Analysis.Purge(ctx, id); err != nil {
			slog.Warn("analysis purge after update failed", slog.String("essay_id", id), slog.Any("error", err))
		}
	}
	return e, nil
}

// Delete removes the essay and purges any cached or in-flight analysis
// state for its identifier.
func (s EssayService) Delete(ctx domain.Context, id, userID string) error {
	if err := s.Essays.Delete(ctx, id, userID); err != nil {
		return err
	}
	if s.Analysis != nil {
		if err := s.Analysis.Purge(ctx, id); err != nil {
			slog.Warn("analysis purge after delete failed", slog.String("essay_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// Report builds the heuristic text report for an owned essay.
func (s EssayService) Report(ctx domain.Context, id, userID string) (domain.TextReport, error) {
	e, err := s.Essays.Get(ctx, id, userID)
	if err != nil {
		return domain.TextReport{}, err
	}
	// Manually entered text carries no OCR noise to discount.
	conf := 100.0
	if e.OCREngine != "" {
		conf = float64(e.OCRConfidence)
	}
	return BuildTextReport(e.ExtractedText, conf), nil
}
