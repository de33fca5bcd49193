package exam

import (
	"context"

	"github.com/mind-engage/ielts-mock/internal/grading"
)

// Score grades answers against a full (keyed) test.
func Score(ctx context.Context, g grading.Grader, t Test, answers Answers) (raw, max, band float64) {
	for _, q := range t.Questions {
		max += q.Points
		entry, ok := answers[q.ID]
		if !ok {
			continue
		}
		res, err := g.Grade(ctx, grading.Q{Type: q.Type, Points: q.Points, AnswerKey: q.AnswerKey}, entry.Value)
		if err != nil {
			continue
		}
		raw += res.AutoPoints
	}
	return raw, max, grading.Band(string(t.Module), raw, max)
}
