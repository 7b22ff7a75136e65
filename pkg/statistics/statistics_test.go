package statistics

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
)

const tolerance = 1e-9

func entries(vals ...float64) []entropy.FileEntropy {
	out := make([]entropy.FileEntropy, len(vals))
	for i, v := range vals {
		out[i] = entropy.FileEntropy{Path: fmt.Sprintf("/tmp/f%d", i), Entropy: v}
	}
	return out
}

func entropiesOf(in []entropy.FileEntropy) []float64 {
	out := make([]float64, len(in))
	for i, e := range in {
		out[i] = e.Entropy
	}
	return out
}

func TestEmptyInput(t *testing.T) {
	for _, in := range [][]entropy.FileEntropy{nil, {}} {
		if _, err := Mean(in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Mean: expected ErrEmptyInput but got %v", err)
		}
		if _, err := Median(in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Median: expected ErrEmptyInput but got %v", err)
		}
		if _, err := Variance(in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Variance: expected ErrEmptyInput but got %v", err)
		}
		if _, err := InterquartileRange(in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("InterquartileRange: expected ErrEmptyInput but got %v", err)
		}
		if out, err := Outliers(in); !errors.Is(err, ErrEmptyInput) || out != nil {
			t.Errorf("Outliers: expected nil, ErrEmptyInput but got %v, %v", out, err)
		}
		if _, err := Summarize("/", in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Summarize: expected ErrEmptyInput but got %v", err)
		}
	}

	one := entries(3.5)
	if _, err := Mean(one); err != nil {
		t.Errorf("Mean: unexpected error on single entry: %v", err)
	}
	if _, err := Median(one); err != nil {
		t.Errorf("Median: unexpected error on single entry: %v", err)
	}
	if _, err := Variance(one); err != nil {
		t.Errorf("Variance: unexpected error on single entry: %v", err)
	}
	if _, err := InterquartileRange(one); err != nil {
		t.Errorf("InterquartileRange: unexpected error on single entry: %v", err)
	}
	if _, err := Outliers(one); err != nil {
		t.Errorf("Outliers: unexpected error on single entry: %v", err)
	}
}

func TestMean(t *testing.T) {
	got, err := Mean(entries(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-2.5) > tolerance {
		t.Errorf("expected 2.5 but got %f", got)
	}
}

func TestMedian(t *testing.T) {
	cases := []struct {
		in   []float64
		want float64
	}{
		{[]float64{1, 2, 3}, 2},
		{[]float64{1, 2, 3, 4}, 2.5},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{7}, 7},
	}
	for _, c := range cases {
		got, err := Median(entries(c.in...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-c.want) > tolerance {
			t.Errorf("median of %v: expected %f but got %f", c.in, c.want, got)
		}
	}
}

func TestVariance(t *testing.T) {
	got, err := Variance(entries(2, 4, 4, 4, 5, 5, 7, 9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-4) > tolerance {
		t.Errorf("expected population variance 4 but got %f", got)
	}
	if got, _ = Variance(entries(5)); got != 0 {
		t.Errorf("expected 0 variance for a single entry but got %f", got)
	}
}

func TestInterquartileRange(t *testing.T) {
	cases := []struct {
		name string
		in   []float64
		want IQR
	}{
		{"even", []float64{1, 2, 3, 4, 5, 6, 7, 8}, IQR{Q1: 2, Q3: 6, IQR: 4}},
		{"unsorted", []float64{8, 3, 5, 1, 7, 2, 6, 4}, IQR{Q1: 2, Q3: 6, IQR: 4}},
		// (7+1)/4 = 2, 3*2 = 6
		{"odd", []float64{1, 2, 3, 4, 5, 6, 7}, IQR{Q1: 2, Q3: 6, IQR: 4}},
		// 6/4 = 1, 3*1 = 3
		{"six", []float64{1, 2, 3, 4, 5, 6}, IQR{Q1: 1, Q3: 3, IQR: 2}},
		// (5+1)/4 = 1, 3*1 = 3
		{"five", []float64{1, 2, 3, 4, 5}, IQR{Q1: 1, Q3: 3, IQR: 2}},
		{"four", []float64{1, 2, 3, 4}, IQR{Q1: 1, Q3: 3, IQR: 2}},
		{"three", []float64{3, 1, 2}, IQR{Q1: 1, Q3: 3, IQR: 2}},
		{"two", []float64{5, 4}, IQR{Q1: 4, Q3: 5, IQR: 1}},
		{"one", []float64{6.5}, IQR{Q1: 6.5, Q3: 6.5, IQR: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := InterquartileRange(entries(c.in...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("expected %+v but got %+v", c.want, got)
			}
		})
	}
}

func TestQuartileIndexesInRange(t *testing.T) {
	for n := 1; n <= 64; n++ {
		q1, q3 := quartileIndexes(n)
		if q1 < 1 || q3 > n || q1 > q3 {
			t.Errorf("n=%d: indexes out of range q1=%d q3=%d", n, q1, q3)
		}
	}
}

func TestSortedDoesNotMutate(t *testing.T) {
	in := entries(5, 1, 4, 2, 3)
	orig := append([]entropy.FileEntropy(nil), in...)

	sorted := Sorted(in)
	if !reflect.DeepEqual(entropiesOf(sorted), []float64{1, 2, 3, 4, 5}) {
		t.Errorf("unexpected sort order: %v", entropiesOf(sorted))
	}

	_, _ = Mean(in)
	_, _ = Median(in)
	_, _ = Variance(in)
	_, _ = InterquartileRange(in)
	_, _ = Outliers(in)
	_, _ = Summarize("/", in)

	if !reflect.DeepEqual(in, orig) {
		t.Errorf("caller's slice was modified: %v", in)
	}
}

func TestSortedStable(t *testing.T) {
	in := []entropy.FileEntropy{
		{Path: "b", Entropy: 1},
		{Path: "a", Entropy: 1},
		{Path: "c", Entropy: 0.5},
	}
	got := Sorted(in)
	if got[0].Path != "c" || got[1].Path != "b" || got[2].Path != "a" {
		t.Errorf("expected stable order c,b,a but got %v", got)
	}
}

func TestOutliersLegacy(t *testing.T) {
	// q1 = 2 (index 2), q3 = 6 (index 6), iqr = 4
	// legacy lower fence: 2 - 3 = -1, upper: 6 + 6 = 12
	in := entries(13, 1, 2, 3, 4, 5, 6, 7)
	got, err := Outliers(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(entropiesOf(got), []float64{13}) {
		t.Errorf("expected [13] but got %v", entropiesOf(got))
	}

	// the legacy lower fence sits at -0.5*q1, so values reaching it are flagged
	in = entries(0, 0, 0, 0, 0, 0, 0, 0)
	if got, _ = Outliers(in); len(got) != 8 {
		t.Errorf("q1 = 0 puts the lower fence at 0; expected all 8 flagged but got %d", len(got))
	}
}

func TestOutliersNoneIsEmptyNotNil(t *testing.T) {
	got, err := Outliers(entries(4, 4.1, 4.2, 4.3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice but got %#v", got)
	}
}

func TestOutliersRules(t *testing.T) {
	// sorted: 1 5 5 5 5 5 5 9 -> q1 = 5, q3 = 5, iqr = 0
	in := entries(5, 5, 1, 5, 9, 5, 5, 5)

	legacy, err := OutliersWithRule(in, RuleLegacy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// legacy: lower = -2.5, upper = 5, so every 5 and the 9 are flagged
	if !reflect.DeepEqual(entropiesOf(legacy), []float64{5, 5, 5, 5, 5, 5, 9}) {
		t.Errorf("legacy: unexpected outliers %v", entropiesOf(legacy))
	}

	tukey, err := OutliersWithRule(in, RuleTukey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// tukey: lower = 5, upper = 5, everything is on a fence
	if len(tukey) != len(in) {
		t.Errorf("tukey: expected all %d flagged but got %v", len(in), entropiesOf(tukey))
	}
	if !reflect.DeepEqual(entropiesOf(tukey), []float64{1, 5, 5, 5, 5, 5, 5, 9}) {
		t.Errorf("tukey: outliers not sorted ascending: %v", entropiesOf(tukey))
	}
}

func TestFences(t *testing.T) {
	q := IQR{Q1: 4, Q3: 6, IQR: 2}
	if lo, hi := q.Fences(RuleLegacy); lo != -2 || hi != 9 {
		t.Errorf("legacy fences: got %f, %f", lo, hi)
	}
	if lo, hi := q.Fences(RuleTukey); lo != 1 || hi != 9 {
		t.Errorf("tukey fences: got %f, %f", lo, hi)
	}
}

func TestParseRule(t *testing.T) {
	for in, want := range map[string]Rule{"": RuleLegacy, "legacy": RuleLegacy, "Tukey": RuleTukey, "iqr": RuleTukey} {
		got, err := ParseRule(in)
		if err != nil || got != want {
			t.Errorf("ParseRule(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseRule("zscore"); !errors.Is(err, ErrUnknownRule) {
		t.Errorf("expected ErrUnknownRule but got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize("/bin", entries(2, 4, 4, 4, 5, 5, 7, 9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Summary{Target: "/bin", Total: 8, Mean: 5, Median: 4.5, Variance: 4}
	if s != want {
		t.Errorf("expected %+v but got %+v", want, s)
	}
}
