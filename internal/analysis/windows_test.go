package analysis

import (
	"reflect"
	"testing"
)

func TestWindowBufferKeepsTrailingSuffix(t *testing.T) {
	rw := NewRollingWindows([]int{4})

	for _, bit := range []byte{1, 0, 1, 1, 0, 0, 1} {
		rw.AddBits([]byte{bit})
	}

	got := rw.AsArrays()[4]
	want := []byte{1, 0, 0, 1} // last 4 of 1,0,1,1,0,0,1
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AsArrays()[4] = %v, want %v", got, want)
	}
}

func TestWindowBufferShorterThanCapacity(t *testing.T) {
	rw := NewRollingWindows([]int{8})
	rw.AddBits([]byte{1, 1, 0})

	got := rw.AsArrays()[8]
	want := []byte{1, 1, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AsArrays()[8] = %v, want %v", got, want)
	}
	if rw.HasEnoughData(0) {
		t.Error("HasEnoughData should be false before the smallest window fills")
	}
}

func TestReconfigureDiscardsHistory(t *testing.T) {
	rw := NewRollingWindows([]int{4})
	rw.AddBits([]byte{1, 1, 1, 1})
	if !rw.HasEnoughData(0) {
		t.Fatal("expected window to be full")
	}

	rw.Reconfigure([]int{4, 8})
	if rw.HasEnoughData(0) {
		t.Error("reconfiguring should discard buffered bits")
	}
	if got := rw.AsArrays()[4]; len(got) != 0 {
		t.Errorf("expected empty buffer after reconfigure, got %v", got)
	}
}

func TestReconfigureDropsNonPositiveSizes(t *testing.T) {
	rw := NewRollingWindows([]int{4, 0, -1, 16})
	if !reflect.DeepEqual(rw.Sizes(), []int{4, 16}) {
		t.Errorf("Sizes() = %v, want [4 16]", rw.Sizes())
	}
}

func TestClearEmptiesAllBuffers(t *testing.T) {
	rw := NewRollingWindows([]int{4, 8})
	rw.AddBits([]byte{1, 0, 1, 0, 1, 0, 1, 0})
	rw.Clear()
	for size, contents := range rw.AsArrays() {
		if len(contents) != 0 {
			t.Errorf("window %d not cleared: %v", size, contents)
		}
	}
}
