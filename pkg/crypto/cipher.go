package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// Cipher is the sealed trait family for authenticated encryption with
// associated data (AEAD). Cryptconf supports exactly one cipher today
// (AES-256-GCM, for SOPS wire compatibility); the interface exists so a
// future cipher can be registered the way pkg/crypto's AESCCM and AESCTR
// are two distinct, independently constructed implementations sharing one
// contract in the teacher module.
type Cipher interface {
	// Name is the exact string used in the ENC[<cipher-name>,...] prefix.
	Name() string
	NonceSize() int
	TagSize() int

	// Seal encrypts plaintext under key and nonce, authenticating aad.
	// It returns the ciphertext (same length as plaintext) and the
	// authorization tag separately, so callers can place them in the
	// wire format's distinct data:/tag: fields.
	Seal(nonce Nonce, key *DataKey, plaintext, aad []byte) (ciphertext []byte, tag AuthorizationTag, err error)

	// Open decrypts ciphertext under key and nonce, verifying it against
	// aad and tag. It returns ErrAuthenticationFailed on any tampering.
	Open(nonce Nonce, key *DataKey, ciphertext, aad []byte, tag AuthorizationTag) (plaintext []byte, err error)
}

// AES256GCMName is the cipher name used in the ENC[...] wire prefix.
const AES256GCMName = "AES256_GCM"

// AES256GCM nonce/tag sizes. SOPS uses a non-standard 32-byte nonce for
// AES-256-GCM rather than the usual 12 bytes; AES256GCM.NonceSize reflects
// that for wire compatibility.
const (
	AES256GCMNonceSize = 32
	AES256GCMTagSize   = 16
)

// ErrAuthenticationFailed is returned when Open fails to verify the tag.
var ErrAuthenticationFailed = errors.New("crypto: AEAD authentication failed")

// AES256GCM implements Cipher using AES-256 in GCM mode with a
// SOPS-compatible 32-byte nonce.
type AES256GCM struct{}

// NewAES256GCM returns the AES-256-GCM cipher implementation.
func NewAES256GCM() AES256GCM { return AES256GCM{} }

func (AES256GCM) Name() string     { return AES256GCMName }
func (AES256GCM) NonceSize() int   { return AES256GCMNonceSize }
func (AES256GCM) TagSize() int     { return AES256GCMTagSize }

func (c AES256GCM) gcm(key *DataKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, AES256GCMNonceSize)
}

// Seal implements Cipher.
func (c AES256GCM) Seal(nonce Nonce, key *DataKey, plaintext, aad []byte) ([]byte, AuthorizationTag, error) {
	if len(nonce) != AES256GCMNonceSize {
		return nil, nil, ErrInvalidNonceSize
	}

	aead, err := c.gcm(key)
	if err != nil {
		return nil, nil, err
	}

	// Seal appends the tag to the ciphertext; split it back out so the
	// wire format can carry data: and tag: as independent fields.
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	ciphertext := sealed[:len(sealed)-aead.Overhead()]
	tag := AuthorizationTag(sealed[len(sealed)-aead.Overhead():])
	return ciphertext, tag, nil
}

// Open implements Cipher.
func (c AES256GCM) Open(nonce Nonce, key *DataKey, ciphertext, aad []byte, tag AuthorizationTag) ([]byte, error) {
	if len(nonce) != AES256GCMNonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(tag) != AES256GCMTagSize {
		return nil, ErrInvalidTagSize
	}

	aead, err := c.gcm(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

var (
	// ErrInvalidNonceSize is returned when a nonce of the wrong length is
	// passed to Seal or Open.
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")
	// ErrInvalidTagSize is returned when a tag of the wrong length is
	// passed to Open.
	ErrInvalidTagSize = errors.New("crypto: invalid tag size")
)
