package crypto

import "crypto/rand"

// Nonce is a single-use AEAD IV. Its length is dictated by the Cipher in
// use (32 bytes for AES-256-GCM, matching the SOPS wire format).
type Nonce []byte

// GenerateNonce returns a fresh random nonce of the given size. It must
// never repeat for a given key over different plaintexts, unless the exact
// same plaintext is being re-encrypted under an identical key path (see the
// saved-nonce stores in pkg/tree and pkg/metadata).
func GenerateNonce(size int) (Nonce, error) {
	n := make(Nonce, size)
	if _, err := rand.Read(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Clone returns an independent copy of the nonce, so a saved nonce can be
// reused across an encrypt/decrypt round trip without aliasing.
func (n Nonce) Clone() Nonce {
	c := make(Nonce, len(n))
	copy(c, n)
	return c
}
