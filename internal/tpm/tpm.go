// Package tpm implements Layer 3 Hardware Attestation via TPM 2.0.
//
// TPM (Trusted Platform Module) provides hardware-backed security:
// - Monotonic counter: Cannot be rolled back
// - Secure clock: Hardware time attestation
// - Platform attestation: Proves execution environment
//
// This package defines interfaces and a no-op fallback for systems without TPM.
// Real TPM integration requires platform-specific code (go-tpm library).
package tpm

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"
)

// Attestation contains hardware attestation data.
type Attestation struct {
	// TPM identity
	DeviceID  []byte `json:"device_id"`
	PublicKey []byte `json:"public_key"`

	// Counters and time
	MonotonicCounter uint64    `json:"monotonic_counter"`
	FirmwareVersion  string    `json:"firmware_version,omitempty"`
	ClockInfo        ClockInfo `json:"clock_info"`

	// The attestation
	Data      []byte `json:"data"`      // What was attested
	Signature []byte `json:"signature"` // TPM signature
	Quote     []byte `json:"quote"`     // TPM quote structure

	// PCRValues holds the platform configuration register readings
	// included in the quote, keyed by register index.
	PCRValues map[int][]byte `json:"pcr_values,omitempty"`

	// PCRDigest is the combined digest over PCRValues, as quoted by the
	// TPM itself. Nil on providers that don't support PCR attestation.
	PCRDigest []byte `json:"pcr_digest,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"created_at"`
}

// ErrTPMAlreadyOpen is returned by Open when the provider is already open.
var ErrTPMAlreadyOpen = errors.New("tpm: already open")

// ErrTPMNotOpen is returned by provider methods called before Open.
var ErrTPMNotOpen = errors.New("tpm: not open")

// ErrTPMNotAvailable is returned by NoOpProvider and by Binder.Bind when no
// TPM is present.
var ErrTPMNotAvailable = errors.New("tpm: not available")

// ErrInvalidSignature is returned by VerifyBinding when the attestation
// carries no signature.
var ErrInvalidSignature = errors.New("tpm: missing attestation signature")

// ErrCounterRollback is returned by VerifyBinding when a binding's counter
// does not strictly exceed its predecessor.
var ErrCounterRollback = errors.New("tpm: monotonic counter did not advance")

// ErrSnapshotMismatch is returned by VerifyBinding when the attestation does
// not cover the snapshot hash it claims to.
var ErrSnapshotMismatch = errors.New("tpm: attestation does not match snapshot")

// ErrPCRMismatch is returned by the hardware providers' UnsealKey when the
// TPM refuses to unseal.
var ErrPCRMismatch = errors.New("tpm: unseal failed, PCR policy not satisfied")

// PCRHashAlgorithm identifies the hash bank a PCR selection reads from.
type PCRHashAlgorithm int

const (
	// HashSHA256 selects the SHA-256 PCR bank.
	HashSHA256 PCRHashAlgorithm = iota
)

// PCRSelection names which PCR banks to include in a quote or seal policy.
type PCRSelection struct {
	Hash PCRHashAlgorithm
	PCRs []int
}

// DefaultPCRSelection returns the PCR set used for attestation when the
// caller has no specific requirements: PCR 0 (firmware) and PCR 7 (secure
// boot / measured boot state).
func DefaultPCRSelection() PCRSelection {
	return PCRSelection{Hash: HashSHA256, PCRs: []int{0, 7}}
}

// ClockInfo contains TPM clock attestation.
type ClockInfo struct {
	// Clock value in milliseconds since TPM boot
	Clock uint64 `json:"clock"`

	// Reset count (number of TPM resets)
	ResetCount uint32 `json:"reset_count"`

	// Restart count (number of TPM restarts without reset)
	RestartCount uint32 `json:"restart_count"`

	// Safe flag (true if clock is reliable)
	Safe bool `json:"safe"`
}

// Binding represents a TPM attestation bound to a detector snapshot, so an
// auditor can later prove an EVENT transition happened on this exact
// hardware at this exact monotonic counter value rather than being
// fabricated after the fact.
type Binding struct {
	// SnapshotHash identifies the AnalysisSnapshot this binds to.
	SnapshotHash [32]byte `json:"snapshot_hash"`

	// Attestation from TPM
	Attestation Attestation `json:"attestation"`

	// Previous binding (for chain verification)
	PreviousCounter uint64 `json:"previous_counter,omitempty"`
}

// Provider abstracts TPM operations.
type Provider interface {
	// Available returns true if TPM is available.
	Available() bool

	// DeviceID returns the TPM's unique identifier.
	DeviceID() ([]byte, error)

	// PublicKey returns the TPM's attestation public key.
	PublicKey() (crypto.PublicKey, error)

	// IncrementCounter atomically increments and returns the monotonic counter.
	IncrementCounter() (uint64, error)

	// GetCounter returns the current counter value without incrementing.
	GetCounter() (uint64, error)

	// GetClock returns the current TPM clock info.
	GetClock() (*ClockInfo, error)

	// Quote creates a TPM quote over the given data.
	Quote(data []byte) (*Attestation, error)

	// GetRandom returns size bytes of entropy from the TPM's hardware RNG
	// (TPM2_GetRandom on real hardware).
	GetRandom(size int) ([]byte, error)

	// Close releases TPM resources.
	Close() error
}

// Binder creates TPM bindings for detector snapshots.
type Binder struct {
	provider    Provider
	lastCounter uint64
}

// NewBinder creates a new TPM binder.
func NewBinder(provider Provider) *Binder {
	return &Binder{
		provider: provider,
	}
}

// Available returns true if TPM binding is available.
func (b *Binder) Available() bool {
	return b.provider != nil && b.provider.Available()
}

// Bind creates a TPM binding for a snapshot hash, typically computed over
// an AnalysisSnapshot at the moment the detector enters EVENT.
func (b *Binder) Bind(snapshotHash [32]byte) (*Binding, error) {
	if !b.Available() {
		return nil, ErrTPMNotAvailable
	}

	attestation, err := b.provider.Quote(snapshotHash[:])
	if err != nil {
		return nil, err
	}

	binding := &Binding{
		SnapshotHash:    snapshotHash,
		Attestation:     *attestation,
		PreviousCounter: b.lastCounter,
	}

	b.lastCounter = attestation.MonotonicCounter
	return binding, nil
}

// VerifyBinding checks a TPM binding against the snapshot it claims to
// cover. trustedKeys is accepted for forward compatibility with real TPM
// quote signature verification; the software and simulated providers don't
// produce signatures a public key can verify, so it is currently unused.
func VerifyBinding(binding *Binding, trustedKeys [][]byte) error {
	if binding.Attestation.MonotonicCounter <= binding.PreviousCounter {
		return ErrCounterRollback
	}

	if !binding.Attestation.ClockInfo.Safe {
		return errors.New("tpm: clock is not in safe state")
	}

	if len(binding.Attestation.Signature) == 0 {
		return ErrInvalidSignature
	}

	if len(binding.Attestation.Data) < 32 {
		return ErrSnapshotMismatch
	}

	var attestedHash [32]byte
	copy(attestedHash[:], binding.Attestation.Data[:32])
	if attestedHash != binding.SnapshotHash {
		return ErrSnapshotMismatch
	}

	return nil
}

// VerifyBindingChain verifies a sequence of bindings in order, checking both
// each binding individually and that each binding's PreviousCounter matches
// the monotonic counter of the binding before it, so the chain cannot have
// bindings spliced out.
func VerifyBindingChain(bindings []Binding, trustedKeys [][]byte) error {
	for i := range bindings {
		if err := VerifyBinding(&bindings[i], trustedKeys); err != nil {
			return err
		}
		if i > 0 && bindings[i].PreviousCounter != bindings[i-1].Attestation.MonotonicCounter {
			return ErrCounterRollback
		}
	}
	return nil
}

// NoOpProvider is a fallback when no TPM is available.
type NoOpProvider struct{}

func (NoOpProvider) Available() bool                      { return false }
func (NoOpProvider) DeviceID() ([]byte, error)            { return nil, ErrTPMNotAvailable }
func (NoOpProvider) PublicKey() (crypto.PublicKey, error) { return nil, ErrTPMNotAvailable }
func (NoOpProvider) IncrementCounter() (uint64, error)    { return 0, ErrTPMNotAvailable }
func (NoOpProvider) GetCounter() (uint64, error)          { return 0, ErrTPMNotAvailable }
func (NoOpProvider) GetClock() (*ClockInfo, error)        { return nil, ErrTPMNotAvailable }
func (NoOpProvider) Quote([]byte) (*Attestation, error)   { return nil, ErrTPMNotAvailable }
func (NoOpProvider) GetRandom(int) ([]byte, error)        { return nil, ErrTPMNotAvailable }
func (NoOpProvider) Open() error                          { return ErrTPMNotAvailable }
func (NoOpProvider) Close() error                         { return nil }

// SoftwareProvider simulates TPM for testing/development.
// WARNING: Provides no actual security guarantees.
type SoftwareProvider struct {
	deviceID    []byte
	counter     uint64
	startTime   time.Time
	resetCount  uint32
}

// NewSoftwareProvider creates a simulated TPM.
func NewSoftwareProvider() *SoftwareProvider {
	id := sha256.Sum256([]byte(time.Now().String()))
	return &SoftwareProvider{
		deviceID:  id[:16],
		counter:   0,
		startTime: time.Now(),
	}
}

func (s *SoftwareProvider) Available() bool { return true }

func (s *SoftwareProvider) DeviceID() ([]byte, error) {
	return s.deviceID, nil
}

func (s *SoftwareProvider) PublicKey() (crypto.PublicKey, error) {
	// Return a dummy public key for simulation
	return nil, nil
}

func (s *SoftwareProvider) IncrementCounter() (uint64, error) {
	s.counter++
	return s.counter, nil
}

func (s *SoftwareProvider) GetCounter() (uint64, error) {
	return s.counter, nil
}

func (s *SoftwareProvider) GetClock() (*ClockInfo, error) {
	elapsed := time.Since(s.startTime)
	return &ClockInfo{
		Clock:        uint64(elapsed.Milliseconds()),
		ResetCount:   s.resetCount,
		RestartCount: 0,
		Safe:         true,
	}, nil
}

func (s *SoftwareProvider) Quote(data []byte) (*Attestation, error) {
	return s.QuoteWithPCRs(data, DefaultPCRSelection())
}

// QuoteWithPCRs behaves like Quote but includes simulated readings for the
// requested PCR set.
func (s *SoftwareProvider) QuoteWithPCRs(data []byte, pcrs PCRSelection) (*Attestation, error) {
	counter, _ := s.IncrementCounter()
	clockInfo, _ := s.GetClock()
	pcrValues, err := s.ReadPCRs(pcrs)
	if err != nil {
		return nil, err
	}

	// Create attestation data
	h := sha256.New()
	h.Write(data)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	h.Write(buf[:])

	return &Attestation{
		DeviceID:         s.deviceID,
		PublicKey:        nil,
		MonotonicCounter: counter,
		ClockInfo:        *clockInfo,
		Data:             data,
		Signature:        h.Sum(nil), // Simulated "signature"
		Quote:            nil,
		PCRValues:        pcrValues,
		CreatedAt:        time.Now(),
	}, nil
}

// GetRandom returns size bytes drawn from crypto/rand, standing in for
// TPM2_GetRandom on hardware that actually has a TPM RNG behind it.
func (s *SoftwareProvider) GetRandom(size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadPCRs simulates a PCR bank by deriving a stable per-index digest from
// the provider's device ID. There is no real measured boot state behind it.
func (s *SoftwareProvider) ReadPCRs(pcrs PCRSelection) (map[int][]byte, error) {
	result := make(map[int][]byte, len(pcrs.PCRs))
	for _, idx := range pcrs.PCRs {
		h := sha256.New()
		h.Write(s.deviceID)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(idx))
		h.Write(buf[:])
		result[idx] = h.Sum(nil)
	}
	return result, nil
}

// SealKey simulates TPM sealing by prefixing data with a digest over the
// requested PCR values; UnsealKey strips the same prefix length back off.
// It provides no real confidentiality and exists only so callers can
// exercise the Provider interface's sealing contract without hardware.
func (s *SoftwareProvider) SealKey(data []byte, pcrs PCRSelection) ([]byte, error) {
	pcrValues, err := s.ReadPCRs(pcrs)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	for _, idx := range pcrs.PCRs {
		h.Write(pcrValues[idx])
	}
	digest := h.Sum(nil)

	sealed := make([]byte, 0, len(digest)+len(data))
	sealed = append(sealed, digest...)
	sealed = append(sealed, data...)
	return sealed, nil
}

// UnsealKey reverses SealKey.
func (s *SoftwareProvider) UnsealKey(sealed []byte) ([]byte, error) {
	if len(sealed) < sha256.Size {
		return nil, errors.New("sealed data too short")
	}
	return sealed[sha256.Size:], nil
}

// Manufacturer reports a placeholder vendor string, matching the shape of
// HardwareProvider.Manufacturer.
func (s *SoftwareProvider) Manufacturer() string { return "software-simulated" }

// FirmwareVersion reports a placeholder version string.
func (s *SoftwareProvider) FirmwareVersion() string { return "sim-1.0" }

// Open is a no-op for SoftwareProvider; it exists so tests can treat it
// uniformly with HardwareProvider, which must open a transport.
func (s *SoftwareProvider) Open() error { return nil }

func (s *SoftwareProvider) Close() error { return nil }

// opener is implemented by providers that require an explicit Open call
// before use (HardwareProvider, SecureEnclaveProvider).
type opener interface {
	Open() error
}

// DetectTPM attempts to detect and open a real TPM via the platform-specific
// HardwareProvider; on platforms without support, or when no TPM device
// responds, it falls back to NoOpProvider. devicePath, if non-empty,
// overrides platform auto-detection with an explicit device node (Linux
// only; ignored on platforms whose TPM transport has no device path, such
// as Windows TBS or macOS Secure Enclave).
func DetectTPM(devicePath string) Provider {
	p := detectHardwareTPM(devicePath)
	if p == nil || !p.Available() {
		return NoOpProvider{}
	}
	if o, ok := p.(opener); ok {
		if err := o.Open(); err != nil {
			return NoOpProvider{}
		}
	}
	return p
}

// Encode serializes a binding to JSON.
func (b *Binding) Encode() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// DecodeBinding deserializes a binding from JSON.
func DecodeBinding(data []byte) (*Binding, error) {
	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Encode serializes an attestation to JSON.
func (a *Attestation) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAttestation deserializes an attestation from JSON.
func DecodeAttestation(data []byte) (*Attestation, error) {
	var a Attestation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Hash returns a stable digest over the attestation's identity and signed
// fields, suitable for linking an attestation to an audit log entry without
// embedding the full (and larger) encoded form.
func (a *Attestation) Hash() [32]byte {
	h := sha256.New()
	h.Write(a.DeviceID)
	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], a.MonotonicCounter)
	h.Write(counterBuf[:])
	h.Write(a.Data)
	h.Write(a.Signature)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
