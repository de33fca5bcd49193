package grading

import "math"

// bandStep maps a minimum raw score (out of 40) to a band.
type bandStep struct {
	min  int
	band float64
}

// Published conversion tables, highest first.
var (
	listeningBands = []bandStep{
		{39, 9.0}, {37, 8.5}, {35, 8.0}, {32, 7.5}, {30, 7.0}, {26, 6.5}, {23, 6.0},
		{18, 5.5}, {16, 5.0}, {13, 4.5}, {10, 4.0}, {8, 3.5}, {6, 3.0}, {4, 2.5},
		{2, 2.0}, {1, 1.0},
	}
	academicReadingBands = []bandStep{
		{39, 9.0}, {37, 8.5}, {35, 8.0}, {33, 7.5}, {30, 7.0}, {27, 6.5}, {23, 6.0},
		{19, 5.5}, {15, 5.0}, {13, 4.5}, {10, 4.0}, {8, 3.5}, {6, 3.0}, {4, 2.5},
		{2, 2.0}, {1, 1.0},
	}
)

// Band converts a raw score to an IELTS band for module ("listening" or
// "reading"). Tests whose maximum is not 40 are scaled onto 40 first.
func Band(module string, raw, max float64) float64 {
	if max <= 0 || raw <= 0 {
		return 0
	}
	if raw > max {
		raw = max
	}
	scaled := int(math.Round(raw * 40 / max))

	table := academicReadingBands
	if module == "listening" {
		table = listeningBands
	}
	for _, s := range table {
		if scaled >= s.min {
			return s.band
		}
	}
	return 0
}
