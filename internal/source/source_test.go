package source

import (
	"errors"
	"reflect"
	"testing"
)

func TestExpandBytesLSBFirst(t *testing.T) {
	got := ExpandBytes([]byte{0b00000101})
	want := []byte{1, 0, 1, 0, 0, 0, 0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandBytes = %v, want %v", got, want)
	}
}

func TestPackBitsRoundTrip(t *testing.T) {
	original := []byte{0x5A, 0xF0, 0x01}
	bits := ExpandBytes(original)
	got := PackBits(bits)
	if !reflect.DeepEqual(got, original) {
		t.Errorf("PackBits(ExpandBytes(x)) = %v, want %v", got, original)
	}
}

func TestPackBitsPadsPartialByte(t *testing.T) {
	got := PackBits([]byte{1, 1, 0})
	want := []byte{0b00000011}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PackBits = %v, want %v", got, want)
	}
}

func TestInjectBiasFlipsEveryPeriod(t *testing.T) {
	bits := make([]byte, 10)
	InjectBias(bits, 0.5) // every = 2
	want := []byte{1, 0, 1, 0, 1, 0, 1, 0, 1, 0}
	if !reflect.DeepEqual(bits, want) {
		t.Errorf("InjectBias = %v, want %v", bits, want)
	}
}

func TestInjectBiasNoOpOutOfRange(t *testing.T) {
	bits := make([]byte, 4)
	InjectBias(bits, 0)
	InjectBias(bits, 0.6)
	for _, b := range bits {
		if b != 0 {
			t.Fatalf("expected no-op, got %v", bits)
		}
	}
}

func TestFakeSourceDeterministic(t *testing.T) {
	a := NewFakeSource(42, 16)
	b := NewFakeSource(42, 16)
	chunkA, err := a.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	chunkB, err := b.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunkA, chunkB) {
		t.Errorf("two FakeSources with the same seed diverged: %v vs %v", chunkA, chunkB)
	}
}

func TestFakeSourceDifferentSeedsDiverge(t *testing.T) {
	a := NewFakeSource(1, 32)
	b := NewFakeSource(2, 32)
	chunkA, _ := a.ReadChunk()
	chunkB, _ := b.ReadChunk()
	if reflect.DeepEqual(chunkA, chunkB) {
		t.Error("different seeds produced identical chunks")
	}
}

func TestBiasedSourceAppliesToUnderlyingChunk(t *testing.T) {
	inner := NewFakeSource(7, 4)
	biased := NewBiasedSource(inner, 0.5)
	chunk, err := biased.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunk) != 4 {
		t.Fatalf("expected 4-byte chunk, got %d", len(chunk))
	}
}

type stubSource struct {
	chunks [][]byte
	errs   []error
	calls  int
	closed bool
}

func (s *stubSource) ReadChunk() ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.chunks) {
		return s.chunks[i], nil
	}
	return nil, errors.New("stub exhausted")
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func TestFailoverSourceFallsBackOnError(t *testing.T) {
	primary := &stubSource{errs: []error{errors.New("device gone")}}
	fallback := &stubSource{chunks: [][]byte{{9, 9, 9}}}
	var failoverErr error
	fo := NewFailoverSource(primary, fallback, func(err error) { failoverErr = err })

	chunk, err := fo.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunk, []byte{9, 9, 9}) {
		t.Errorf("expected fallback chunk, got %v", chunk)
	}
	if failoverErr == nil {
		t.Error("expected onFailover callback to fire")
	}
	if fo.OnPrimary() {
		t.Error("expected OnPrimary() false after failover")
	}
}

func TestFailoverSourceStaysOnFallbackUntilRetry(t *testing.T) {
	primary := &stubSource{errs: []error{errors.New("down"), errors.New("still down")}}
	fallback := &stubSource{chunks: [][]byte{{1}, {2}}}
	fo := NewFailoverSource(primary, fallback, nil)

	fo.ReadChunk()
	if _, err := fo.ReadChunk(); err != nil {
		t.Fatal(err)
	}
	if primary.calls != 1 {
		t.Errorf("expected primary tried only once before Retry, got %d calls", primary.calls)
	}

	fo.Retry()
	if !fo.OnPrimary() {
		t.Error("expected OnPrimary() true after Retry")
	}
}

func TestTPMSourceUnavailableIsSourceError(t *testing.T) {
	tpmSrc := NewTPMSource("", 8)
	if tpmSrc.Available() {
		t.Skip("TPM unexpectedly available in this environment")
	}
	_, err := tpmSrc.ReadChunk()
	var serr *SourceError
	if !errors.As(err, &serr) {
		t.Errorf("expected *SourceError, got %v (%T)", err, err)
	}
}
