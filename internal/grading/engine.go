package grading

import (
	"context"
	"strings"
)

// Q is the slice of a question the grader needs.
type Q struct {
	Type      string
	Points    float64
	AnswerKey []string
}

// Result is the outcome of grading a single response.
type Result struct {
	AutoPoints float64
	MaxPoints  float64
	Feedback   []string
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, response string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response string) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
	fallback   Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response string) (Result, error) {
	if strings.TrimSpace(response) == "" {
		return Result{MaxPoints: q.Points}, nil
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		s = g.fallback
	}
	return s.Grade(ctx, q, response)
}

type Option func(*config)

type config struct {
	MaxEditDistance   int  // gap-fill fuzzy tolerance, 0 = exact spelling
	AllowPartialMulti bool // partial credit for mcq_multi without false positives
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option   { return func(c *config) { c.AllowPartialMulti = b } }

// NewDefaultGrader installs the built-in strategies. Unknown types are
// graded as gap-fill.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{AllowPartialMulti: true}
	for _, o := range opts {
		o(cfg)
	}
	gap := gapFillStrategy{maxEdit: cfg.MaxEditDistance}
	choice := choiceStrategy{}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"mcq_single":           choice,
			"matching":             choice,
			"true_false_not_given": judgementStrategy{},
			"yes_no_not_given":     judgementStrategy{},
			"mcq_multi":            mcqMultiStrategy{allowPartial: cfg.AllowPartialMulti},
			"gap_fill":             gap,
			"short_answer":         gap,
			"numeric":              numericStrategy{},
		},
		fallback: gap,
	}
}

// --- Strategies ---

// choiceStrategy compares option letters/ids case-insensitively.
type choiceStrategy struct{}

func (choiceStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp := strings.ToUpper(strings.TrimSpace(response))
	for _, k := range q.AnswerKey {
		if resp == strings.ToUpper(strings.TrimSpace(k)) {
			res.AutoPoints = q.Points
			break
		}
	}
	return res, nil
}

// judgementStrategy handles TRUE/FALSE/NOT GIVEN and YES/NO/NOT GIVEN,
// accepting the usual abbreviations.
type judgementStrategy struct{}

var judgementAliases = map[string]string{
	"t": "true", "f": "false",
	"y": "yes", "n": "no",
	"ng": "not given", "notgiven": "not given",
}

func canonicalJudgement(s string) string {
	n := normalize(s)
	if v, ok := judgementAliases[strings.ReplaceAll(n, " ", "")]; ok {
		return v
	}
	if v, ok := judgementAliases[n]; ok {
		return v
	}
	return n
}

func (judgementStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp := canonicalJudgement(response)
	for _, k := range q.AnswerKey {
		if resp == canonicalJudgement(k) {
			res.AutoPoints = q.Points
			break
		}
	}
	return res, nil
}

// mcqMultiStrategy expects a comma-separated list of options ("A,C").
type mcqMultiStrategy struct{ allowPartial bool }

func (s mcqMultiStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	correct := toSet(upperAll(q.AnswerKey))
	resp := toSet(splitList(response))
	if setEqual(correct, resp) {
		res.AutoPoints = q.Points
		return res, nil
	}
	for r := range resp {
		if _, ok := correct[r]; !ok {
			return res, nil
		}
	}
	if s.allowPartial && len(correct) > 0 {
		inter := 0
		for k := range resp {
			if _, ok := correct[k]; ok {
				inter++
			}
		}
		res.AutoPoints = q.Points * (float64(inter) / float64(len(correct)))
	}
	return res, nil
}

// gapFillStrategy compares normalized words. A key may list alternatives
// separated by "/" ("colour/color").
type gapFillStrategy struct{ maxEdit int }

func (s gapFillStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	normResp := normalize(response)

	fuzzy := false
	for _, k := range q.AnswerKey {
		for _, alt := range strings.Split(k, "/") {
			nk := normalize(alt)
			if nk == "" {
				continue
			}
			if nk == normResp {
				res.AutoPoints = q.Points
				return res, nil
			}
			if s.maxEdit > 0 && levenshtein(nk, normResp) <= s.maxEdit {
				fuzzy = true
			}
		}
	}
	if fuzzy {
		res.AutoPoints = q.Points * 0.5
		res.Feedback = append(res.Feedback, "close match (spelling)")
	}
	return res, nil
}

// helpers

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
	return upperAll(parts)
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
