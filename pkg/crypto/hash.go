package crypto

import (
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// SHA512LenBytes is the SHA-512 output length in bytes.
const SHA512LenBytes = 64

// Hasher is the sealed trait family for the incremental hash used to
// compute the MAC over a decrypted tree (see pkg/metadata). Cryptconf
// ships one implementation, SHA-512, matching SOPS.
type Hasher interface {
	// Update feeds more bytes into the running digest.
	Update(b []byte)
	// Finalize returns the uppercase-hex ASCII encoding of the digest.
	// Per the MAC protocol this encoded string, not the raw digest, is
	// the value that gets AEAD-encrypted and compared on decrypt.
	Finalize() string
}

// SHA512Hasher wraps the standard library's incremental SHA-512
// implementation behind the Hasher contract.
type SHA512Hasher struct {
	h hash.Hash
}

// NewSHA512Hasher returns a fresh incremental SHA-512 hasher.
func NewSHA512Hasher() *SHA512Hasher {
	return &SHA512Hasher{h: sha512.New()}
}

// Update implements Hasher.
func (s *SHA512Hasher) Update(b []byte) {
	s.h.Write(b)
}

// Finalize implements Hasher.
func (s *SHA512Hasher) Finalize() string {
	sum := s.h.Sum(nil)
	return strings.ToUpper(hex.EncodeToString(sum))
}
