package pipeline

import "testing"

func TestPositiveSizesDropsNonPositiveEntries(t *testing.T) {
	got := positiveSizes([]int{256, -1, 0, 1024})
	want := []int{256, 1024}

	if len(got) != len(want) {
		t.Fatalf("positiveSizes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("positiveSizes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPositiveSizesAllNonPositiveYieldsEmpty(t *testing.T) {
	if got := positiveSizes([]int{0, -5}); len(got) != 0 {
		t.Errorf("positiveSizes() = %v, want empty", got)
	}
}
