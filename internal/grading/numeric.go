package grading

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// numericStrategy scores answers that are numbers: prices, distances,
// dates, percentages. Each key entry is an accepted value; an entry of the
// form "tol=0.5" or "reltol=0.05" widens the match for all of them.
//
//	AnswerKey: ["1250", "1,250"]
//	AnswerKey: ["3.5", "tol=0.01"]
type numericStrategy struct{}

type tolerance struct {
	abs, rel float64
}

func (t tolerance) accepts(got, want float64) bool {
	d := math.Abs(got - want)
	return d <= t.abs || d <= t.rel*math.Abs(want)
}

func (numericStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	targets, tol := splitNumericKey(q.AnswerKey)
	resp := strings.TrimSpace(response)
	got, gotOK := parseNumber(resp)
	for _, target := range targets {
		if strings.EqualFold(resp, target) {
			res.AutoPoints = q.Points
			return res, nil
		}
		want, ok := parseNumber(target)
		if ok && gotOK && tol.accepts(got, want) {
			res.AutoPoints = q.Points
			return res, nil
		}
	}
	return res, nil
}

func splitNumericKey(key []string) (targets []string, tol tolerance) {
	for _, k := range key {
		k = strings.TrimSpace(k)
		name, val, ok := strings.Cut(strings.ToLower(k), "=")
		if !ok {
			targets = append(targets, k)
			continue
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil || v < 0 {
			continue
		}
		switch name {
		case "tol":
			tol.abs = v
		case "reltol":
			tol.rel = v
		}
	}
	return targets, tol
}

// parseNumber reads the leading number of s, ignoring a currency sign,
// thousands separators and a trailing unit ("£1,250", "15 km", "40%").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "£$€")
	s = strings.ReplaceAll(s, ",", "")
	end := 0
	for end < len(s) && (s[end] == '.' || s[end] == '-' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	return v, err == nil
}
