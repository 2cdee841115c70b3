// Package crypto provides the cryptographic primitives for the cryptconf
// engine: the data key, nonces, authorization tags, key paths, and the
// Cipher/Hasher abstractions layered on top of them.
package crypto

import (
	"crypto/rand"
	"errors"
)

// DataKeySize is the fixed size of a DataKey in bytes (AES-256).
const DataKeySize = 32

// ErrInvalidDataKeySize is returned when a DataKey is constructed from the
// wrong number of bytes.
var ErrInvalidDataKeySize = errors.New("crypto: data key must be 32 bytes")

// DataKey is the per-file symmetric key used to encrypt every leaf and the
// MAC. It is generated fresh by GenerateDataKey for every encrypt operation
// (or on integration-key removal, per the rotation protocol) and must never
// be serialized in the clear.
type DataKey struct {
	bytes [DataKeySize]byte
}

// GenerateDataKey produces a fresh DataKey from a cryptographically secure
// random source.
func GenerateDataKey() (*DataKey, error) {
	var dk DataKey
	if _, err := rand.Read(dk.bytes[:]); err != nil {
		return nil, err
	}
	return &dk, nil
}

// DataKeyFromBytes wraps an existing 32-byte key, as recovered from an
// integration's unwrap operation.
func DataKeyFromBytes(b []byte) (*DataKey, error) {
	if len(b) != DataKeySize {
		return nil, ErrInvalidDataKeySize
	}
	var dk DataKey
	copy(dk.bytes[:], b)
	return &dk, nil
}

// Bytes returns the raw key material. Callers must not retain the returned
// slice past the DataKey's lifetime; it aliases the DataKey's internal array.
func (dk *DataKey) Bytes() []byte {
	return dk.bytes[:]
}

// Zero overwrites the key material with zeroes. Callers should defer this
// as soon as a DataKey is no longer needed.
func (dk *DataKey) Zero() {
	for i := range dk.bytes {
		dk.bytes[i] = 0
	}
}
