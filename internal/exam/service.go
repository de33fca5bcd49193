package exam

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/ielts-mock/internal/grading"
)

type memoryStore struct {
	mu       sync.RWMutex
	tests    map[string]Test
	attempts map[string]Attempt
	grader   grading.Grader
	now      func() time.Time
}

func NewInMemoryStore(g grading.Grader) Store {
	if g == nil {
		g = grading.NewDefaultGrader()
	}
	return &memoryStore{
		tests:    map[string]Test{},
		attempts: map[string]Attempt{},
		grader:   g,
		now:      time.Now,
	}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	if err := t.Normalize(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.tests[t.ID]; ok {
		t.CreatedAt = old.CreatedAt
	} else {
		t.CreatedAt = m.now().Unix()
	}
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := m.GetTestAdmin(ctx, id)
	if err != nil {
		return Test{}, err
	}
	return t.stripKeys(), nil
}

func (m *memoryStore) GetTestAdmin(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrTestNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, module Module) ([]TestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TestSummary, 0, len(m.tests))
	for _, t := range m.tests {
		if module != "" && t.Module != module {
			continue
		}
		out = append(out, t.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) CreateRun(_ context.Context, testID, userID string) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[testID]
	if !ok {
		return Attempt{}, false, ErrTestNotFound
	}
	for _, a := range m.attempts {
		if a.TestID == testID && a.UserID == userID && a.Status == StatusInProgress {
			return a.copy(), false, nil
		}
	}
	now := m.now()
	a := Attempt{
		ID:         uuid.NewString(),
		TestID:     testID,
		UserID:     userID,
		Module:     t.Module,
		Status:     StatusInProgress,
		Answers:    Answers{},
		MaxScore:   t.MaxScore(),
		StartedAt:  now.Unix(),
		DeadlineAt: now.Add(time.Duration(t.TimeLimitSec) * time.Second).Unix(),
	}
	m.attempts[a.ID] = a
	return a.copy(), true, nil
}

func (m *memoryStore) SaveAnswers(_ context.Context, attemptID string, answers Answers) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Submitted() {
		return Attempt{}, ErrSubmitted
	}
	a.Answers.Merge(answers)
	m.attempts[attemptID] = a
	return a.copy(), nil
}

func (m *memoryStore) Submit(ctx context.Context, attemptID string, final Answers) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Submitted() {
		return a.copy(), nil
	}
	a.Answers.Merge(final)
	a.RawScore, a.MaxScore, a.Band = Score(ctx, m.grader, m.tests[a.TestID], a.Answers)
	a.Status = StatusSubmitted
	a.SubmittedAt = m.now().Unix()
	m.attempts[attemptID] = a
	return a.copy(), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a.copy(), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a.copy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	if opts.offset() >= len(out) {
		return []Attempt{}, nil
	}
	out = out[opts.offset():]
	if l := opts.limit(); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

// copy detaches the answers map from the stored value.
func (a Attempt) copy() Attempt {
	a.Answers = a.Answers.Clone()
	return a
}
