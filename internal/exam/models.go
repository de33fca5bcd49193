package exam

import (
	"fmt"
	"strings"
)

type Module string

const (
	ModuleListening Module = "listening"
	ModuleReading   Module = "reading"
)

func ParseModule(s string) (Module, error) {
	switch m := Module(strings.ToLower(strings.TrimSpace(s))); m {
	case ModuleListening, ModuleReading:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown module %q", ErrInvalidTest, s)
	}
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
)

type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Section is a reading passage or a listening part.
type Section struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
	AudioKey string `json:"audio_key,omitempty"` // blob key, listening only
}

type Question struct {
	ID        string   `json:"id"`
	Section   int      `json:"section"`
	Type      string   `json:"type"` // mcq_single, mcq_multi, true_false_not_given, gap_fill, ...
	Prompt    string   `json:"prompt,omitempty"`
	Choices   []Choice `json:"choices,omitempty"`
	AnswerKey []string `json:"answer_key,omitempty"`
	Points    float64  `json:"points"`
}

type Test struct {
	ID           string     `json:"id"`
	Module       Module     `json:"module"`
	Title        string     `json:"title"`
	TimeLimitSec int        `json:"time_limit_sec"`
	Sections     []Section  `json:"sections"`
	Questions    []Question `json:"questions"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

type TestSummary struct {
	ID            string `json:"id"`
	Module        Module `json:"module"`
	Title         string `json:"title"`
	TimeLimitSec  int    `json:"time_limit_sec"`
	QuestionCount int    `json:"question_count"`
	CreatedAt     int64  `json:"created_at"`
}

// Normalize fills defaults and checks structural invariants.
func (t *Test) Normalize() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidTest)
	}
	m, err := ParseModule(string(t.Module))
	if err != nil {
		return err
	}
	t.Module = m
	if t.TimeLimitSec <= 0 {
		return fmt.Errorf("%w: time_limit_sec must be positive", ErrInvalidTest)
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("%w: at least one section required", ErrInvalidTest)
	}
	seen := make(map[string]bool, len(t.Questions))
	for i := range t.Questions {
		q := &t.Questions[i]
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidTest, i)
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidTest, q.ID)
		}
		seen[q.ID] = true
		if q.Section < 0 || q.Section >= len(t.Sections) {
			return fmt.Errorf("%w: question %q points at section %d", ErrInvalidTest, q.ID, q.Section)
		}
		if q.Points <= 0 {
			q.Points = 1
		}
	}
	return nil
}

func (t Test) MaxScore() float64 {
	total := 0.0
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}

func (t Test) Summary() TestSummary {
	return TestSummary{
		ID:            t.ID,
		Module:        t.Module,
		Title:         t.Title,
		TimeLimitSec:  t.TimeLimitSec,
		QuestionCount: len(t.Questions),
		CreatedAt:     t.CreatedAt,
	}
}

// stripKeys returns a copy safe to show candidates.
func (t Test) stripKeys() Test {
	qs := make([]Question, len(t.Questions))
	copy(qs, t.Questions)
	for i := range qs {
		qs[i].AnswerKey = nil
	}
	t.Questions = qs
	return t
}

// AnswerEntry is one question's answer. Value is always a string once touched.
type AnswerEntry struct {
	Value   string `json:"value"`
	Flagged bool   `json:"flagged"`
}

type Answers map[string]AnswerEntry

func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge overwrites entries of a with those in other. Entries are never removed.
func (a Answers) Merge(other Answers) {
	for k, v := range other {
		a[k] = v
	}
}

type Attempt struct {
	ID          string  `json:"id"`
	TestID      string  `json:"test_id"`
	UserID      string  `json:"user_id"`
	Module      Module  `json:"module"`
	Status      Status  `json:"status"`
	Answers     Answers `json:"answers"`
	RawScore    float64 `json:"raw_score"`
	MaxScore    float64 `json:"max_score"`
	Band        float64 `json:"band"`
	StartedAt   int64   `json:"started_at"`
	DeadlineAt  int64   `json:"deadline_at"`
	SubmittedAt int64   `json:"submitted_at,omitempty"`
}

func (a Attempt) Submitted() bool { return a.Status == StatusSubmitted }
