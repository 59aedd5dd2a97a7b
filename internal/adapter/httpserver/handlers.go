package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
	"github.com/ezsentencefix/ez-sentence-fix/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Auth        usecase.AuthService
	Essays      usecase.EssayService
	Evaluations usecase.EvaluationService
	Analysis    *usecase.AnalysisService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, auth usecase.AuthService, essays usecase.EssayService, evals usecase.EvaluationService, analysis *usecase.AnalysisService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Auth: auth, Essays: essays, Evaluations: evals, Analysis: analysis, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// allowedImageMIME enforces the upload allowlist. Essay photos arrive as
// camera captures or scans, so only raster image types are accepted.
func allowedImageMIME(m string) bool {
	switch strings.ToLower(m) {
	case "image/jpeg", "image/png", "image/webp", "image/tiff", "image/bmp":
		return true
	}
	return false
}

type essayView struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	ImageRef       string    `json:"image_ref,omitempty"`
	ExtractedText  string    `json:"extracted_text"`
	OCRConfidence  int       `json:"ocr_confidence"`
	OCREngine      string    `json:"ocr_engine,omitempty"`
	GeneratedScore *float64  `json:"generated_score"`
	FinalScore     *float64  `json:"final_score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toEssayView(e domain.Essay) essayView {
	return essayView{
		ID:             e.ID,
		Title:          e.Title,
		ImageRef:       e.ImageRef,
		ExtractedText:  e.ExtractedText,
		OCRConfidence:  e.OCRConfidence,
		OCREngine:      e.OCREngine,
		GeneratedScore: e.GeneratedScore,
		FinalScore:     e.FinalScore,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

type essayJSONRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64"`
	ImageRef    string `json:"image_ref"`
}

// essayInput is the normalized body of a create or update request,
// accepted either as multipart/form-data or as JSON with base64 image.
type essayInput struct {
	Title    string
	Text     string
	ImageRef string
	Image    []byte
}

func (s *Server) readEssayInput(w http.ResponseWriter, r *http.Request) (essayInput, error) {
	maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				return essayInput{}, fmt.Errorf("%w: image exceeds %dMB limit", domain.ErrInvalidArgument, s.Cfg.MaxUploadMB)
			}
			return essayInput{}, fmt.Errorf("%w: invalid multipart form", domain.ErrInvalidArgument)
		}
		in := essayInput{
			Title: r.FormValue("title"),
			Text:  r.FormValue("text"),
		}
		file, hdr, err := r.FormFile("image")
		if err == nil {
			defer func() { _ = file.Close() }()
			data, err := io.ReadAll(file)
			if err != nil {
				return essayInput{}, fmt.Errorf("op=essay.read_image: %w", err)
			}
			if m := mimetype.Detect(data); !allowedImageMIME(m.String()) {
				return essayInput{}, fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalidArgument, m.String())
			}
			in.Image = data
			in.ImageRef = hdr.Filename
		}
		return in, nil
	}

	var req essayJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return essayInput{}, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument)
	}
	in := essayInput{Title: req.Title, Text: req.Text, ImageRef: req.ImageRef}
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return essayInput{}, fmt.Errorf("%w: image_base64 is not valid base64", domain.ErrInvalidArgument)
		}
		if m := mimetype.Detect(data); !allowedImageMIME(m.String()) {
			return essayInput{}, fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalidArgument, m.String())
		}
		in.Image = data
	}
	return in, nil
}

// CreateEssayHandler accepts a new essay with an optional handwritten
// image; OCR runs inline when an image is present.
func (s *Server) CreateEssayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readEssayInput(w, r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if strings.TrimSpace(in.Title) == "" {
			writeError(w, r, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument), nil)
			return
		}
		userID := UserIDFrom(r.Context())
		e, err := s.Essays.Create(r.Context(), userID, in.Title, in.ImageRef, in.Image)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if in.Image == nil && in.Text != "" {
			e, err = s.Essays.Update(r.Context(), e.ID, userID, in.Title, in.Text, "", nil)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
		}
		LoggerFrom(r).Info("essay created", slog.String("essay_id", e.ID), slog.String("ocr_engine", e.OCREngine))
		writeJSON(w, http.StatusCreated, toEssayView(e))
	}
}

// ListEssaysHandler returns the caller's essays, newest first.
func (s *Server) ListEssaysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		essays, err := s.Essays.List(r.Context(), UserIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]essayView, 0, len(essays))
		for _, e := range essays {
			out = append(out, toEssayView(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"essays": out})
	}
}

// GetEssayHandler returns one essay owned by the caller.
func (s *Server) GetEssayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.Essays.Get(r.Context(), chi.URLParam(r, "id"), UserIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toEssayView(e))
	}
}

// UpdateEssayHandler rewrites an essay's title, text, or image. A new
// image triggers a fresh OCR pass; any content change drops the cached
// analysis.
func (s *Server) UpdateEssayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readEssayInput(w, r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		e, err := s.Essays.Update(r.Context(), chi.URLParam(r, "id"), UserIDFrom(r.Context()), in.Title, in.Text, in.ImageRef, in.Image)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toEssayView(e))
	}
}

// DeleteEssayHandler removes an essay and purges its cached analysis.
func (s *Server) DeleteEssayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Essays.Delete(r.Context(), chi.URLParam(r, "id"), UserIDFrom(r.Context())); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReportHandler returns the local heuristic text report. No provider is
// called, so the endpoint is cheap enough to hit on every page load.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.Essays.Report(r.Context(), chi.URLParam(r, "id"), UserIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

type analysisResponse struct {
	Status string                 `json:"status"`
	Result *domain.AnalysisResult `json:"result,omitempty"`
}

// AnalysisHandler is the polling endpoint for the asynchronous analysis
// pipeline. The first call starts a background job and answers 202; later
// polls answer 202 while the job runs and 200 with the cached result once
// it completes.
func (s *Server) AnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.Essays.Get(r.Context(), chi.URLParam(r, "id"), UserIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		st, err := s.Analysis.Request(r.Context(), e.ID, e.ExtractedText)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		status := http.StatusAccepted
		if st.State == domain.AnalysisCompleted {
			status = http.StatusOK
		}
		writeJSON(w, status, analysisResponse{Status: string(st.State), Result: st.Result})
	}
}

type reanalyzeRequest struct {
	Text string `json:"text" validate:"required"`
}

type reanalyzeResponse struct {
	FormattedText string              `json:"formatted_text"`
	Corrections   []domain.Correction `json:"corrections"`
	Rubric        domain.RubricResult `json:"rubric"`
}

// ReanalyzeHandler formats and scores arbitrary text synchronously. It
// bypasses the cache and the single-flight registry, so drafts can be
// graded without touching a stored essay.
func (s *Server) ReanalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reanalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		format, rubric, err := s.Analysis.RunSync(r.Context(), req.Text)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, reanalyzeResponse{FormattedText: format.FormattedText, Corrections: format.Corrections, Rubric: rubric})
	}
}

type evaluationRequest struct {
	Competency int    `json:"competency" validate:"required,min=1,max=5"`
	Score      int    `json:"score" validate:"min=0,max=200"`
	Comment    string `json:"comment" validate:"max=2000"`
}

type evaluationView struct {
	ID         string    `json:"id"`
	EssayID    string    `json:"essay_id"`
	Competency int       `json:"competency"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

func toEvaluationView(ev domain.Evaluation) evaluationView {
	return evaluationView{ID: ev.ID, EssayID: ev.EssayID, Competency: ev.Competency, Score: ev.Score, Comment: ev.Comment, CreatedAt: ev.CreatedAt}
}

// CreateEvaluationHandler records a human grader's score for one
// competency. A second evaluation for the same competency answers 409.
func (s *Server) CreateEvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		ev, err := s.Evaluations.Create(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "id"), req.Competency, req.Score, req.Comment)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toEvaluationView(ev))
	}
}

// ListEvaluationsHandler returns an essay's evaluations ordered by competency.
func (s *Server) ListEvaluationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evals, err := s.Evaluations.ListByEssay(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]evaluationView, 0, len(evals))
		for _, ev := range evals {
			out = append(out, toEvaluationView(ev))
		}
		writeJSON(w, http.StatusOK, map[string]any{"evaluations": out})
	}
}

// UpdateEvaluationHandler rewrites an evaluation and recomputes the
// essay's final score.
func (s *Server) UpdateEvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		ev, err := s.Evaluations.Update(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "evalID"), req.Competency, req.Score, req.Comment)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toEvaluationView(ev))
	}
}

// DeleteEvaluationHandler removes an evaluation and recomputes the final score.
func (s *Server) DeleteEvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Evaluations.Delete(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "evalID")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadyzHandler reports dependency health for readiness probes.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
