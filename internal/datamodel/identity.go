package datamodel

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// derivationContext is mixed into the salt before it is used as a keyed
// hash key, so that the same salt string can never collide with a key
// used for some unrelated purpose (domain separation, same role as the
// reference implementation's KEY_CONTEXT string).
const derivationContext = "SENSAPP uuid hash mac 2024-01-19 strings to unique ids"

var (
	identityKey     []byte
	identityKeyOnce sync.Once
	identityKeySet  bool
	identityMu      sync.RWMutex
)

// InitSalt derives the process-wide keyed-hash key from salt. It is
// safe to call more than once; only the first call takes effect, and
// later calls with the same repository expect the same salt throughout
// a process lifetime.
func InitSalt(salt string) {
	identityKeyOnce.Do(func() {
		key := blake2b.Sum256(append([]byte(derivationContext), salt...))
		identityMu.Lock()
		identityKey = key[:]
		identityKeySet = true
		identityMu.Unlock()
	})
}

// Initialized reports whether InitSalt has run.
func Initialized() bool {
	identityMu.RLock()
	defer identityMu.RUnlock()
	return identityKeySet
}

// deriveUUID keyed-hashes buffer with the process-wide identity key and
// folds the first 16 hash bytes into an RFC 4122 version-8 UUID.
func deriveUUID(buffer []byte) (uuid.UUID, error) {
	identityMu.RLock()
	key := identityKey
	set := identityKeySet
	identityMu.RUnlock()
	if !set {
		return uuid.UUID{}, NewError(NotInitialized, "identity key not initialized; call InitSalt first")
	}

	mac, err := blake2b.New256(key)
	if err != nil {
		return uuid.UUID{}, err
	}
	mac.Write(buffer)
	sum := mac.Sum(nil)

	var out [16]byte
	copy(out[:], sum[:16])
	id, err := uuid.FromBytes(setUUIDv8(out))
	if err != nil {
		return uuid.UUID{}, err
	}
	return id, nil
}

// setUUIDv8 stamps the RFC 4122 version-8 / variant bits onto a raw
// 16-byte hash payload, per §3.3.
func setUUIDv8(b [16]byte) []byte {
	out := b[:]
	out[6] = (out[6] & 0x0F) | 0x80 // version 8
	out[8] = (out[8] & 0x3F) | 0x80 // variant RFC 4122
	return out
}

// NameToUUID accepts a caller-supplied string that addresses a series.
// If s already parses as a UUID it is returned verbatim; otherwise a
// UUID is derived from s alone, with empty type/unit/label fields.
func NameToUUID(s string) (uuid.UUID, error) {
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}
	buf, err := computeIdentityBuffer(s, 0, nil, nil)
	if err != nil {
		return uuid.UUID{}, err
	}
	return deriveUUID(buf)
}

// DeriveUUID is exported for callers (e.g. tests) that already hold a
// precomputed identity buffer.
func DeriveUUID(buffer []byte) (uuid.UUID, error) {
	return deriveUUID(buffer)
}
