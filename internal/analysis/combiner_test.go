package analysis

import (
	"math"
	"testing"
)

func TestCombineEmptyYieldsZeroedStats(t *testing.T) {
	stats := Combine(map[int][]TestResult{64: nil})
	if stats.GDI != 0 {
		t.Errorf("expected GDI 0, got %v", stats.GDI)
	}
	if len(stats.Summaries) != 1 || len(stats.Summaries[0].QValues) != 0 {
		t.Errorf("expected one empty summary, got %+v", stats.Summaries)
	}
}

func TestCombineStoufferFormula(t *testing.T) {
	summaries := map[int][]TestResult{
		64: {
			{Name: TestMonobit, Window: 64, PValue: 0.5, ZScore: 1.0},
			{Name: TestRuns, Window: 64, PValue: 0.3, ZScore: 2.0},
		},
	}
	stats := Combine(summaries)
	want := 3.0 / math.Sqrt(2)
	if math.Abs(stats.GDI-want) > 1e-9 {
		t.Errorf("GDI = %v, want %v", stats.GDI, want)
	}
}

func TestCombinePermutationInvariant(t *testing.T) {
	a := map[int][]TestResult{
		64: {
			{Name: TestMonobit, Window: 64, PValue: 0.5, ZScore: 1.0},
			{Name: TestRuns, Window: 64, PValue: 0.3, ZScore: -2.0},
			{Name: TestSerial, Window: 64, PValue: 0.1, ZScore: 0.5},
		},
	}
	b := map[int][]TestResult{
		64: {
			{Name: TestSerial, Window: 64, PValue: 0.1, ZScore: 0.5},
			{Name: TestMonobit, Window: 64, PValue: 0.5, ZScore: 1.0},
			{Name: TestRuns, Window: 64, PValue: 0.3, ZScore: -2.0},
		},
	}
	statsA := Combine(a)
	statsB := Combine(b)
	if math.Abs(statsA.GDI-statsB.GDI) > 1e-12 {
		t.Errorf("GDI not permutation invariant: %v vs %v", statsA.GDI, statsB.GDI)
	}
}

func TestBHQValuesMonotoneAndBounded(t *testing.T) {
	summaries := map[int][]TestResult{
		64: {
			{Name: TestMonobit, Window: 64, PValue: 0.001, ZScore: 3},
			{Name: TestRuns, Window: 64, PValue: 0.02, ZScore: 2},
			{Name: TestSerial, Window: 64, PValue: 0.5, ZScore: 0.1},
		},
	}
	stats := Combine(summaries)
	for _, q := range stats.QValues {
		if q < 0 || q > 1 {
			t.Errorf("q-value out of [0,1]: %v", q)
		}
	}
	// The smallest p-value's q must be the smallest q (running min from the top).
	qMonobit := stats.QValues["monobit@64"]
	qSerial := stats.QValues["serial@64"]
	if qMonobit > qSerial {
		t.Errorf("expected q for smallest p-value (%v) <= q for largest p-value (%v)", qMonobit, qSerial)
	}
}

func TestCombineIdempotent(t *testing.T) {
	summaries := map[int][]TestResult{
		32: {{Name: TestMonobit, Window: 32, PValue: 0.2, ZScore: 1.5}},
		64: {{Name: TestRuns, Window: 64, PValue: 0.05, ZScore: 2.1}},
	}
	first := Combine(summaries)
	second := Combine(summaries)
	if first.GDI != second.GDI {
		t.Errorf("GDI not stable across repeated Combine calls: %v vs %v", first.GDI, second.GDI)
	}
	for k, v := range first.QValues {
		if second.QValues[k] != v {
			t.Errorf("q-value for %s changed across calls: %v vs %v", k, v, second.QValues[k])
		}
	}
}

func TestCombineQValuesHoldOnlyProducedKeys(t *testing.T) {
	summaries := map[int][]TestResult{
		64: {{Name: TestMonobit, Window: 64, PValue: 0.01, ZScore: 2}},
	}
	stats := Combine(summaries)
	if _, ok := stats.QValues["nonexistent@64"]; ok {
		t.Fatal("unexpected key present")
	}
	// The window summary's own q-value map carries the key of the result it
	// was built from.
	ws := stats.Summaries[0]
	if _, ok := ws.QValues["monobit@64"]; !ok {
		t.Error("expected monobit@64 present in its own window summary")
	}
}
