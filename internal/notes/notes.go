// Package notes stores passage highlights and their attached note text.
package notes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("note not found")
	ErrInvalidRange = errors.New("invalid highlight range")
	ErrOverlap      = errors.New("highlight overlaps an existing highlight")
	ErrInvalidNote  = errors.New("invalid note")
)

// Range is a half-open [Start, End) span of character offsets in the
// passage text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Valid() bool { return r.Start >= 0 && r.End > r.Start }

func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

type Note struct {
	ID        string  `json:"id"`
	AttemptID string  `json:"attemptId"`
	PassageID string  `json:"passageId"`
	Ranges    []Range `json:"ranges"`
	Color     string  `json:"color"`
	Text      string  `json:"noteText"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

type Store interface {
	Insert(ctx context.Context, n Note) error
	Get(ctx context.Context, id string) (Note, error)
	Update(ctx context.Context, n Note) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, attemptID, passageID string) ([]Note, error) // passageID "" = all passages
}

type CreateInput struct {
	AttemptID string  `json:"attemptId"`
	PassageID string  `json:"passageId"`
	Ranges    []Range `json:"ranges"`
	Color     string  `json:"color"`
	Text      string  `json:"noteText"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Color  *string `json:"color,omitempty"`
	Text   *string `json:"noteText,omitempty"`
	Ranges []Range `json:"ranges,omitempty"`
}

// Service enforces the highlight invariants on top of a Store.
type Service struct {
	store Store
	// serializes check-then-write so two overlapping creates cannot both pass
	mu  sync.Mutex
	now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Note, error) {
	if strings.TrimSpace(in.AttemptID) == "" || strings.TrimSpace(in.PassageID) == "" {
		return Note{}, fmt.Errorf("%w: attemptId and passageId required", ErrInvalidNote)
	}
	ranges, err := normalizeRanges(in.Ranges)
	if err != nil {
		return Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOverlap(ctx, in.AttemptID, in.PassageID, "", ranges); err != nil {
		return Note{}, err
	}
	now := s.now().UnixMilli()
	n := Note{
		ID:        uuid.NewString(),
		AttemptID: in.AttemptID,
		PassageID: in.PassageID,
		Ranges:    ranges,
		Color:     in.Color,
		Text:      in.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id string) (Note, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return Note{}, err
	}
	if in.Ranges != nil {
		ranges, err := normalizeRanges(in.Ranges)
		if err != nil {
			return Note{}, err
		}
		if err := s.checkOverlap(ctx, n.AttemptID, n.PassageID, n.ID, ranges); err != nil {
			return Note{}, err
		}
		n.Ranges = ranges
	}
	if in.Color != nil {
		n.Color = *in.Color
	}
	if in.Text != nil {
		n.Text = *in.Text
	}
	n.UpdatedAt = s.now().UnixMilli()
	if err := s.store.Update(ctx, n); err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, attemptID string) ([]Note, error) {
	return s.store.List(ctx, attemptID, "")
}

func (s *Service) checkOverlap(ctx context.Context, attemptID, passageID, selfID string, ranges []Range) error {
	existing, err := s.store.List(ctx, attemptID, passageID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == selfID {
			continue
		}
		for _, r := range ranges {
			for _, o := range other.Ranges {
				if r.Overlaps(o) {
					return fmt.Errorf("%w: [%d,%d) vs note %s", ErrOverlap, r.Start, r.End, other.ID)
				}
			}
		}
	}
	return nil
}

// normalizeRanges validates each range, sorts them and rejects ranges that
// overlap each other.
func normalizeRanges(in []Range) ([]Range, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one range required", ErrInvalidRange)
	}
	out := append([]Range(nil), in...)
	for _, r := range out {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: [%d,%d)", ErrInvalidRange, r.Start, r.End)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Overlaps(out[i-1]) {
			return nil, fmt.Errorf("%w: ranges within the note overlap", ErrOverlap)
		}
	}
	return out, nil
}
