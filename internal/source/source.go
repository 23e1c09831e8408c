// Package source implements the Bit Source: the component that reads raw
// entropy chunks from a device (with failover to a secondary device),
// expands them to individual bits, and optionally injects a deterministic
// bias for test and demo purposes.
package source

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	mathrand "math/rand"
	"os"

	"golang.org/x/crypto/hkdf"

	"rngkiosk/internal/tpm"
)

// SourceError wraps a failure to open or read from a Bit Source.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source: %s: %v", e.Op, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// BitSource reads raw entropy chunks. Close is always idempotent.
type BitSource interface {
	ReadChunk() ([]byte, error)
	Close() error
}

// ExpandBytes expands bytes to bits LSB-first: bit index 0 of the output is
// (byte>>0)&1, bit 7 is (byte>>7)&1.
func ExpandBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for shift := uint(0); shift < 8; shift++ {
			out = append(out, (b>>shift)&1)
		}
	}
	return out
}

// PackBits is the inverse of ExpandBytes: it repacks a bit slice into bytes,
// LSB-first, zero-padding the final partial byte.
func PackBits(bitsIn []byte) []byte {
	n := (len(bitsIn) + 7) / 8
	out := make([]byte, n)
	for i, b := range bitsIn {
		if b != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// InjectBias flips bit i in place iff i mod floor(1/bias) == 0, for
// bias in (0, 0.5]. A non-positive or out-of-range bias is a no-op.
func InjectBias(bitsIn []byte, bias float64) {
	every := biasPeriod(bias)
	if every <= 0 {
		return
	}
	for i := range bitsIn {
		if i%every == 0 {
			bitsIn[i] ^= 1
		}
	}
}

func biasPeriod(bias float64) int {
	if bias <= 0 || bias > 0.5 {
		return 0
	}
	return int(1 / bias)
}

// DeviceSource reads fixed-size chunks from a named device path, such as
// /dev/hwrng or /dev/urandom. Opening is lazily retried on every ReadChunk
// call if the initial open failed, so a fallback device that does not exist
// at startup can still be used once it appears.
type DeviceSource struct {
	path      string
	readBytes int
	f         *os.File
}

func NewDeviceSource(path string, readBytes int) *DeviceSource {
	return &DeviceSource{path: path, readBytes: readBytes}
}

func (d *DeviceSource) ensureOpen() error {
	if d.f != nil {
		return nil
	}
	f, err := os.Open(d.path)
	if err != nil {
		return err
	}
	d.f = f
	return nil
}

func (d *DeviceSource) ReadChunk() ([]byte, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, &SourceError{Op: "open " + d.path, Err: err}
	}
	buf := make([]byte, d.readBytes)
	n, err := io.ReadFull(d.f, buf)
	if err != nil {
		d.f.Close()
		d.f = nil
		return nil, &SourceError{Op: "read " + d.path, Err: err}
	}
	if n == 0 {
		return nil, &SourceError{Op: "read " + d.path, Err: errors.New("empty read")}
	}
	return buf, nil
}

func (d *DeviceSource) Close() error {
	if d.f == nil {
		return nil
	}
	f := d.f
	d.f = nil
	return f.Close()
}

// CryptoRandSource reads from crypto/rand. It is the default fallback when
// no specific fallback device path is configured.
type CryptoRandSource struct {
	readBytes int
}

func NewCryptoRandSource(readBytes int) *CryptoRandSource {
	return &CryptoRandSource{readBytes: readBytes}
}

func (c *CryptoRandSource) ReadChunk() ([]byte, error) {
	buf := make([]byte, c.readBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, &SourceError{Op: "crypto/rand read", Err: err}
	}
	return buf, nil
}

func (c *CryptoRandSource) Close() error { return nil }

// FakeSource produces pseudo-random bytes from a seeded generator. The seed
// is stretched via HKDF-SHA256 (golang.org/x/crypto/hkdf) so a small integer
// seed still yields well-mixed generator state; two FakeSources built from
// the same seed produce bit-for-bit identical streams.
type FakeSource struct {
	readBytes int
	rng       *mathrand.Rand
}

// NewFakeSource builds a deterministic fake source.
func NewFakeSource(seed int64, readBytes int) *FakeSource {
	return &FakeSource{
		readBytes: readBytes,
		rng:       mathrand.New(mathrand.NewSource(expandSeed(seed))),
	}
}

// expandSeed stretches a small integer seed through HKDF-SHA256 so the
// resulting generator seed is well distributed even for small inputs.
func expandSeed(seed int64) int64 {
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> uint(8*i))
	}
	kdf := hkdf.New(sha256.New, seedBytes[:], nil, []byte("rngkiosk-fake-source"))
	out := make([]byte, 8)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return seed
	}
	var expanded int64
	for i := 0; i < 8; i++ {
		expanded |= int64(out[i]) << uint(8*i)
	}
	return expanded
}

func (f *FakeSource) ReadChunk() ([]byte, error) {
	buf := make([]byte, f.readBytes)
	if _, err := f.rng.Read(buf); err != nil {
		return nil, &SourceError{Op: "fake source read", Err: err}
	}
	return buf, nil
}

func (f *FakeSource) Close() error { return nil }

// BiasedSource wraps another BitSource, applying bit-level bias injection to
// every chunk after LSB-first expansion and before re-packing. The bias
// index continues across chunk boundaries so the injected period is in
// terms of the overall bit stream, not reset at every chunk.
type BiasedSource struct {
	inner   BitSource
	bias    float64
	counter int
}

func NewBiasedSource(inner BitSource, bias float64) *BiasedSource {
	return &BiasedSource{inner: inner, bias: bias}
}

func (b *BiasedSource) ReadChunk() ([]byte, error) {
	chunk, err := b.inner.ReadChunk()
	if err != nil {
		return nil, err
	}
	every := biasPeriod(b.bias)
	if every <= 0 {
		return chunk, nil
	}
	expanded := ExpandBytes(chunk)
	for i := range expanded {
		if (b.counter+i)%every == 0 {
			expanded[i] ^= 1
		}
	}
	b.counter += len(expanded)
	return PackBits(expanded), nil
}

func (b *BiasedSource) Close() error { return b.inner.Close() }

// TPMSource reads random bytes by way of a TPM device when one is present.
// Availability is detected through the tpm package's Provider; if no TPM is
// available, the caller is expected to treat ReadChunk's error as a primary
// read failure and fail over to its secondary source, exactly like any
// other BitSource variant.
type TPMSource struct {
	provider  tpm.Provider
	readBytes int
}

// NewTPMSource builds a TPMSource. devicePath, if non-empty, pins detection
// to that device node instead of probing the platform's default TPM paths.
func NewTPMSource(devicePath string, readBytes int) *TPMSource {
	return &TPMSource{provider: tpm.DetectTPM(devicePath), readBytes: readBytes}
}

func (t *TPMSource) Available() bool {
	return t.provider != nil && t.provider.Available()
}

func (t *TPMSource) ReadChunk() ([]byte, error) {
	if !t.Available() {
		return nil, &SourceError{Op: "tpm read", Err: errors.New("no TPM available")}
	}
	buf, err := t.provider.GetRandom(t.readBytes)
	if err != nil {
		return nil, &SourceError{Op: "tpm get random", Err: err}
	}
	return buf, nil
}

func (t *TPMSource) Close() error { return nil }

// FailoverSource reads from primary, and on any error, from fallback. It
// does not return to primary automatically; Retry lets an owning Pipeline
// re-probe primary on its own periodic schedule.
type FailoverSource struct {
	primary, fallback BitSource
	onPrimary         bool
	onFailover        func(error)
}

// NewFailoverSource builds a FailoverSource starting against primary.
// onFailover, if non-nil, is invoked with the primary's error the first
// time a ReadChunk call falls back.
func NewFailoverSource(primary, fallback BitSource, onFailover func(error)) *FailoverSource {
	return &FailoverSource{primary: primary, fallback: fallback, onPrimary: true, onFailover: onFailover}
}

func (f *FailoverSource) ReadChunk() ([]byte, error) {
	if f.onPrimary {
		chunk, err := f.primary.ReadChunk()
		if err == nil {
			return chunk, nil
		}
		f.onPrimary = false
		if f.onFailover != nil {
			f.onFailover(err)
		}
	}
	return f.fallback.ReadChunk()
}

func (f *FailoverSource) Close() error {
	err1 := f.primary.Close()
	err2 := f.fallback.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Retry resets the source to prefer primary again on the next ReadChunk.
func (f *FailoverSource) Retry() {
	f.onPrimary = true
}

// OnPrimary reports whether the source is currently reading from primary.
func (f *FailoverSource) OnPrimary() bool {
	return f.onPrimary
}
