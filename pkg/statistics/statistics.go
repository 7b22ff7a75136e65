// Package statistics summarizes a set of file entropies and finds outliers in it.
//
// Every function returns [ErrEmptyInput] when handed an empty set. None of them
// modify the caller's slice.
package statistics

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
)

// ErrEmptyInput is returned when statistics are requested over zero files.
var ErrEmptyInput = errors.New("no entropy results to summarize")

// Outlier fence multiplier.
const fenceFactor = 1.5

// IQR holds the first and third quartiles and the distance between them.
type IQR struct {
	Q1  float64 `json:"q1"`
	Q3  float64 `json:"q3"`
	IQR float64 `json:"iqr"`
}

// Summary is the aggregate over one scan.
type Summary struct {
	Target   string  `json:"target"`
	Total    int     `json:"total"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Variance float64 `json:"variance"`
}

func values(entropies []entropy.FileEntropy) stats.Float64Data {
	data := make(stats.Float64Data, len(entropies))
	for i, e := range entropies {
		data[i] = e.Entropy
	}
	return data
}

// Mean returns the arithmetic mean of the entropies.
func Mean(entropies []entropy.FileEntropy) (float64, error) {
	if len(entropies) == 0 {
		return 0, ErrEmptyInput
	}
	return stats.Mean(values(entropies))
}

// Sorted returns a copy of entropies in ascending entropy order. Equal values keep
// their original relative order.
func Sorted(entropies []entropy.FileEntropy) []entropy.FileEntropy {
	sorted := slices.Clone(entropies)
	slices.SortStableFunc(sorted, func(a, b entropy.FileEntropy) int {
		return cmp.Compare(a.Entropy, b.Entropy)
	})
	return sorted
}

// Median returns the middle entropy, or the average of the two middle values for an
// even count.
func Median(entropies []entropy.FileEntropy) (float64, error) {
	if len(entropies) == 0 {
		return 0, ErrEmptyInput
	}
	return stats.Median(values(entropies))
}

// Variance returns the population variance (divided by n, not n-1).
func Variance(entropies []entropy.FileEntropy) (float64, error) {
	if len(entropies) == 0 {
		return 0, ErrEmptyInput
	}
	return stats.PopulationVariance(values(entropies))
}

// quartileIndexes returns the 1-based positions of Q1 and Q3 in a sorted set of n
// values: n/4 for even n, (n+1)/4 for odd n, and three times that for Q3.
// Sets of one or two values would produce position 0, so Q1 is raised to the
// first value and Q3 capped at the last.
func quartileIndexes(n int) (q1, q3 int) {
	switch n % 2 {
	case 0:
		q1 = n / 4
	default:
		q1 = (n + 1) / 4
	}
	if q1 < 1 {
		q1 = 1
	}
	q3 = 3 * q1
	if q3 > n {
		q3 = n
	}
	return q1, q3
}

// InterquartileRange returns Q1, Q3 and their difference using a discrete
// estimator that reads values straight out of the sorted set (no interpolation).
func InterquartileRange(entropies []entropy.FileEntropy) (IQR, error) {
	if len(entropies) == 0 {
		return IQR{}, ErrEmptyInput
	}

	sorted := Sorted(entropies)
	q1Idx, q3Idx := quartileIndexes(len(sorted))

	q1 := sorted[q1Idx-1].Entropy
	q3 := sorted[q3Idx-1].Entropy

	return IQR{Q1: q1, Q3: q3, IQR: q3 - q1}, nil
}

// Rule selects the lower outlier fence.
type Rule uint8

const (
	// RuleLegacy puts the lower fence at q1 - 1.5*q1. This is what earlier releases
	// reported and stays the default so results remain comparable.
	RuleLegacy Rule = iota
	// RuleTukey puts the lower fence at q1 - 1.5*iqr.
	RuleTukey
)

func (r Rule) String() string {
	switch r {
	case RuleLegacy:
		return "legacy"
	case RuleTukey:
		return "tukey"
	default:
		return fmt.Sprintf("Rule(%d)", r)
	}
}

// ErrUnknownRule is returned by [ParseRule] for unrecognized names.
var ErrUnknownRule = errors.New("unknown outlier rule")

// ParseRule converts "legacy" or "tukey" into a [Rule].
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return RuleLegacy, nil
	case "tukey", "iqr":
		return RuleTukey, nil
	default:
		return RuleLegacy, fmt.Errorf("%w: %q (want legacy or tukey)", ErrUnknownRule, s)
	}
}

// Fences returns the inclusive lower and upper outlier bounds for q under rule.
func (q IQR) Fences(rule Rule) (lower, upper float64) {
	switch rule {
	case RuleTukey:
		lower = q.Q1 - fenceFactor*q.IQR
	default:
		lower = q.Q1 - fenceFactor*q.Q1
	}
	upper = q.Q3 + fenceFactor*q.IQR
	return lower, upper
}

// Outliers returns the entries outside the [RuleLegacy] fences, sorted ascending.
func Outliers(entropies []entropy.FileEntropy) ([]entropy.FileEntropy, error) {
	return OutliersWithRule(entropies, RuleLegacy)
}

// OutliersWithRule returns every entry at or beyond either fence, sorted ascending.
// A non-empty set without outliers yields an empty, non-nil slice.
func OutliersWithRule(entropies []entropy.FileEntropy, rule Rule) ([]entropy.FileEntropy, error) {
	iqr, err := InterquartileRange(entropies)
	if err != nil {
		return nil, err
	}

	lower, upper := iqr.Fences(rule)

	outliers := make([]entropy.FileEntropy, 0)
	for _, e := range entropies {
		if e.Entropy <= lower || e.Entropy >= upper {
			outliers = append(outliers, e)
		}
	}

	return Sorted(outliers), nil
}

// Summarize computes a [Summary] of entropies for target.
func Summarize(target string, entropies []entropy.FileEntropy) (Summary, error) {
	if len(entropies) == 0 {
		return Summary{Target: target}, ErrEmptyInput
	}

	var (
		s   = Summary{Target: target, Total: len(entropies)}
		err error
	)

	if s.Mean, err = Mean(entropies); err != nil {
		return s, fmt.Errorf("mean: %w", err)
	}
	if s.Median, err = Median(entropies); err != nil {
		return s, fmt.Errorf("median: %w", err)
	}
	if s.Variance, err = Variance(entropies); err != nil {
		return s, fmt.Errorf("variance: %w", err)
	}

	return s, nil
}
