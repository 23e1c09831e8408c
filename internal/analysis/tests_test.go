package analysis

import (
	"math"
	"math/rand"
	"testing"
)

func uniformBits(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(r.Intn(2))
	}
	return bits
}

func TestMonobitBiasedStream(t *testing.T) {
	bits := make([]byte, 4096)
	r := rand.New(rand.NewSource(1))
	for i := range bits {
		if r.Float64() < 0.75 {
			bits[i] = 1
		}
	}

	result, ok := monobitTest(bits, len(bits))
	if !ok {
		t.Fatal("expected a result")
	}
	if result.PValue >= 0.05 {
		t.Errorf("expected p-value < 0.05 for a strongly biased stream, got %v", result.PValue)
	}
	if result.ZScore <= 0 {
		t.Errorf("expected positive z-score for a 1-biased stream, got %v", result.ZScore)
	}
	if result.Direction != DirectionPositive {
		t.Errorf("expected positive direction, got %v", result.Direction)
	}
}

func TestRunsDegenerateBranch(t *testing.T) {
	bits := make([]byte, 100)
	for i := range bits {
		bits[i] = 1 // far from pi=0.5
	}
	result, ok := runsTest(bits, len(bits))
	if !ok {
		t.Fatal("expected a result")
	}
	if result.PValue != pMin {
		t.Errorf("expected clamped p=%v, got %v", pMin, result.PValue)
	}
	if !math.IsInf(result.ZScore, 1) {
		t.Errorf("expected +Inf z-score, got %v", result.ZScore)
	}
	if result.Direction != DirectionPositive {
		t.Errorf("expected positive direction, got %v", result.Direction)
	}
}

func TestBelowMinimumLengthSkipsTest(t *testing.T) {
	if _, ok := fftTest(uniformBits(10, 2), 10); ok {
		t.Error("fft test should be skipped below its minimum length of 64")
	}
	if _, ok := apEntropyTest([]byte{1}, 1); ok {
		t.Error("ap_entropy test should be skipped below its minimum length")
	}
}

func TestPValuesAreClamped(t *testing.T) {
	if got := clampP(0); got != pMin {
		t.Errorf("clampP(0) = %v, want %v", got, pMin)
	}
	if got := clampP(1); got != pMax {
		t.Errorf("clampP(1) = %v, want %v", got, pMax)
	}
}

func TestRunBatteryUnbiasedStream(t *testing.T) {
	bits := uniformBits(8192, 42)
	results := RunBattery(bits, len(bits))
	if len(results) != 6 {
		t.Fatalf("expected all 6 tests to run on an 8192-bit window, got %d", len(results))
	}
}
