package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// fakeLLM is a scriptable domain.LLMClient that counts calls.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(systemPrompt, userPrompt string) (string, error)
	// gate, when non-nil, blocks every call until the channel closes.
	gate chan struct{}
}

func (f *fakeLLM) Complete(_ domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.fn(systemPrompt, userPrompt)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// validRubricJSON builds a grader response with the given five scores.
func validRubricJSON(scores [5]int, comment string) string {
	total := 0
	comps := make([]string, 0, 5)
	for i, sc := range scores {
		total += sc
		comps = append(comps, fmt.Sprintf(
			`"c%d": {"nome": "Competência %d", "nota": %d, "comentario": "ok", "pontosFortes": ["f"], "pontosAMelhorar": ["m"]}`,
			i+1, i+1, sc))
	}
	return fmt.Sprintf(`{
		"notaFinal1000": %d,
		"tesePrincipal": "tese",
		"tituloSugerido": "titulo",
		"comentarioGeral": %q,
		"competencias": {%s}
	}`, total, comment, strings.Join(comps, ","))
}

// fakeStore implements AnalysisStore in memory with a controllable clock.
type fakeStore struct {
	mu      sync.Mutex
	results map[string]fakeEntry
	locks   map[string]time.Time
	now     time.Time
}

type fakeEntry struct {
	res       domain.AnalysisResult
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: make(map[string]fakeEntry),
		locks:   make(map[string]time.Time),
		now:     time.Now(),
	}
}

func (s *fakeStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *fakeStore) GetResult(_ context.Context, key string) (domain.AnalysisResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.results[key]
	if !ok || s.now.After(e.expiresAt) {
		return domain.AnalysisResult{}, false, nil
	}
	return e.res, true, nil
}

func (s *fakeStore) SetResult(_ context.Context, key string, res domain.AnalysisResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = fakeEntry{res: res, expiresAt: s.now.Add(ttl)}
	return nil
}

func (s *fakeStore) DeleteResult(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, key)
	delete(s.locks, key)
	return nil
}

func (s *fakeStore) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, held := s.locks[key]; held && s.now.Before(exp) {
		return false, nil
	}
	s.locks[key] = s.now.Add(ttl)
	return true, nil
}

func (s *fakeStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// fakeEssayRepo is an in-memory domain.EssayRepository.
type fakeEssayRepo struct {
	mu     sync.Mutex
	seq    int
	essays map[string]domain.Essay
}

func newFakeEssayRepo() *fakeEssayRepo {
	return &fakeEssayRepo{essays: make(map[string]domain.Essay)}
}

func (r *fakeEssayRepo) Create(_ domain.Context, e domain.Essay) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.ID = fmt.Sprintf("essay-%d", r.seq)
	r.essays[e.ID] = e
	return e.ID, nil
}

func (r *fakeEssayRepo) Get(_ domain.Context, id, userID string) (domain.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok || e.UserID != userID {
		return domain.Essay{}, domain.ErrNotFound
	}
	return e, nil
}

func (r *fakeEssayRepo) GetByID(_ domain.Context, id string) (domain.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return domain.Essay{}, domain.ErrNotFound
	}
	return e, nil
}

func (r *fakeEssayRepo) List(_ domain.Context, userID string) ([]domain.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Essay
	for _, e := range r.essays {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeEssayRepo) Update(_ domain.Context, e domain.Essay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.essays[e.ID]; !ok {
		return domain.ErrNotFound
	}
	r.essays[e.ID] = e
	return nil
}

func (r *fakeEssayRepo) UpdateScores(_ domain.Context, id string, generated, final *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.GeneratedScore = generated
	e.FinalScore = final
	r.essays[id] = e
	return nil
}

func (r *fakeEssayRepo) UpdateExtractedText(_ domain.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.ExtractedText = text
	r.essays[id] = e
	return nil
}

func (r *fakeEssayRepo) Delete(_ domain.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok || e.UserID != userID {
		return domain.ErrNotFound
	}
	delete(r.essays, id)
	return nil
}

// fakeEvalRepo is an in-memory domain.EvaluationRepository.
type fakeEvalRepo struct {
	mu    sync.Mutex
	seq   int
	evals map[string]domain.Evaluation
}

func newFakeEvalRepo() *fakeEvalRepo {
	return &fakeEvalRepo{evals: make(map[string]domain.Evaluation)}
}

func (r *fakeEvalRepo) Create(_ domain.Context, ev domain.Evaluation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.ID = fmt.Sprintf("eval-%d", r.seq)
	r.evals[ev.ID] = ev
	return ev.ID, nil
}

func (r *fakeEvalRepo) Get(_ domain.Context, id string) (domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.evals[id]
	if !ok {
		return domain.Evaluation{}, domain.ErrNotFound
	}
	return ev, nil
}

func (r *fakeEvalRepo) ListByEssay(_ domain.Context, essayID string) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Evaluation
	for _, ev := range r.evals {
		if ev.EssayID == essayID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Competency < out[j].Competency })
	return out, nil
}

func (r *fakeEvalRepo) FindByCompetency(_ domain.Context, essayID string, competency int) (domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.evals {
		if ev.EssayID == essayID && ev.Competency == competency {
			return ev, nil
		}
	}
	return domain.Evaluation{}, domain.ErrNotFound
}

func (r *fakeEvalRepo) Update(_ domain.Context, ev domain.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.evals[ev.ID]; !ok {
		return domain.ErrNotFound
	}
	r.evals[ev.ID] = ev
	return nil
}

func (r *fakeEvalRepo) Delete(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.evals[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.evals, id)
	return nil
}

// fakeUserRepo is an in-memory domain.UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) Create(_ domain.Context, u domain.User) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	u.ID = fmt.Sprintf("user-%d", r.seq)
	r.users[u.ID] = u
	return u.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ domain.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *fakeUserRepo) Get(_ domain.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// fakeOCR returns a fixed result or error.
type fakeOCR struct {
	res domain.OCRResult
	err error
}

func (f *fakeOCR) ExtractText(_ domain.Context, _ []byte) (domain.OCRResult, error) {
	return f.res, f.err
}

// longEssayText is comfortably above the minimum analyzable length.
var longEssayText = strings.Repeat("A mobilidade urbana brasileira enfrenta desafios estruturais. ", 5)
