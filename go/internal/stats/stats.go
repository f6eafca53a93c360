package stats

import (
	"math"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// Summarize derives the revealed-results panel from a set of votes. Only
// non-zero numeric estimates take part in average and mode; tokens such as
// "?" are counted as cast but ignored numerically.
func Summarize(votes []models.Vote) models.Stats {
	values := numericValues(votes)

	s := models.Stats{
		Count:     len(values),
		Consensus: Consensus(votes),
	}
	if avg, ok := Average(values); ok {
		s.Average = &avg
	}
	if mode, ok := Mode(values); ok {
		s.Mode = &mode
	}
	return s
}

// Average returns the mean rounded to one decimal place.
func Average(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10, true
}

// Mode returns the most frequent value. On a frequency tie the value whose
// last occurrence comes latest in vote order wins.
func Mode(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	freq := make(map[float64]int, len(values))
	best := 0
	for _, v := range values {
		freq[v]++
		if freq[v] > best {
			best = freq[v]
		}
	}

	var mode float64
	for _, v := range values {
		if freq[v] == best {
			mode = v
		}
	}
	return mode, true
}

// Consensus reports whether at least two participants cast a numeric
// estimate and every cast estimate is the same number.
func Consensus(votes []models.Vote) bool {
	var first models.Value
	cast := 0
	for _, vote := range votes {
		if vote.Value.IsNull() {
			continue
		}
		if _, ok := vote.Value.Number(); !ok {
			return false
		}
		if cast == 0 {
			first = vote.Value
		} else if !vote.Value.Equal(first) {
			return false
		}
		cast++
	}
	return cast >= 2
}

func numericValues(votes []models.Vote) []float64 {
	values := make([]float64, 0, len(votes))
	for _, vote := range votes {
		if n, ok := vote.Value.Number(); ok && n != 0 {
			values = append(values, n)
		}
	}
	return values
}
