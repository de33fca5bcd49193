// Package checkpoint holds the periodically persisted snapshot of an
// in-progress attempt and the answer diff used to keep payloads small.
package checkpoint

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/mind-engage/ielts-mock/internal/exam"
)

var (
	ErrNotFound    = errors.New("checkpoint not found")
	ErrMissingID   = errors.New("attempt id required")
	ErrRateLimited = errors.New("checkpoint rate limited")
)

// Snapshot is a flattened copy of the exam page state.
type Snapshot struct {
	AttemptID    string            `json:"attemptId"`
	Answers      exam.Answers      `json:"answers"`
	SectionIndex int               `json:"sectionIndex"`
	TimeLeft     int               `json:"timeLeft"`        // seconds
	Notes        []string          `json:"notes,omitempty"` // note ids
	Filters      map[string]string `json:"filters,omitempty"`
	LayoutMode   string            `json:"layoutMode,omitempty"`
	Started      bool              `json:"started"`
	FocusMode    bool              `json:"focusMode"`
	// Delta marks Answers as only the keys changed since the last
	// acknowledged snapshot.
	Delta   bool  `json:"delta,omitempty"`
	SavedAt int64 `json:"savedAt,omitempty"`
}

// Clone deep-copies the mutable parts of s.
func (s Snapshot) Clone() Snapshot {
	s.Answers = s.Answers.Clone()
	if s.Notes != nil {
		s.Notes = append([]string(nil), s.Notes...)
	}
	if s.Filters != nil {
		f := make(map[string]string, len(s.Filters))
		for k, v := range s.Filters {
			f[k] = v
		}
		s.Filters = f
	}
	return s
}

// Meta is everything in a snapshot except the answers.
type Meta struct {
	SectionIndex int
	TimeLeft     int
	Notes        []string
	Filters      map[string]string
	LayoutMode   string
	Started      bool
	FocusMode    bool
}

func (s Snapshot) Meta() Meta {
	return Meta{
		SectionIndex: s.SectionIndex,
		TimeLeft:     s.TimeLeft,
		Notes:        s.Notes,
		Filters:      s.Filters,
		LayoutMode:   s.LayoutMode,
		Started:      s.Started,
		FocusMode:    s.FocusMode,
	}
}

// SameMeta reports whether two snapshots differ only in answers. TimeLeft
// is ignored when ignoreClock is set, since the countdown alone should not
// cause a send.
func SameMeta(a, b Snapshot, ignoreClock bool) bool {
	am, bm := a.Meta(), b.Meta()
	if ignoreClock {
		am.TimeLeft, bm.TimeLeft = 0, 0
	}
	if len(am.Notes) == 0 && len(bm.Notes) == 0 {
		am.Notes, bm.Notes = nil, nil
	}
	if len(am.Filters) == 0 && len(bm.Filters) == 0 {
		am.Filters, bm.Filters = nil, nil
	}
	return reflect.DeepEqual(am, bm)
}

// DiffAnswers returns the entries of next whose serialized value differs
// from prev, including keys prev does not have. Keys only in prev are
// ignored: answers are never deleted.
func DiffAnswers(prev, next exam.Answers) exam.Answers {
	out := exam.Answers{}
	for k, nv := range next {
		pv, ok := prev[k]
		if !ok || !sameSerialized(pv, nv) {
			out[k] = nv
		}
	}
	return out
}

func sameSerialized(a, b exam.AnswerEntry) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return string(ab) == string(bb)
}
