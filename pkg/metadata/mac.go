package metadata

import (
	"bytes"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// MacOnlyEncryptedInitValue is fed to the hasher before any leaf when
// mac_only_encrypted is set, exactly as SOPS defines it, so that a
// mac_only_encrypted file and a full-tree file starting from the same
// plaintext never collide on the same MAC.
var MacOnlyEncryptedInitValue = []byte{
	0x8A, 0x3F, 0xD2, 0xAD, 0x54, 0xCE, 0x66, 0x52,
	0x7B, 0x10, 0x34, 0xF3, 0xD1, 0x47, 0xBE, 0x0B,
	0x0B, 0x97, 0x5B, 0x3B, 0xF4, 0x4F, 0x72, 0xC6,
	0xFD, 0xAD, 0xEC, 0x81, 0x76, 0xF2, 0x7D, 0x69,
}

// ComputeMac hashes the decrypted tree's qualifying leaves, in
// traversal order, and returns the uppercase-hex digest as an ASCII
// string. When macOnlyEncrypted is true, only leaves the policy does
// not escape contribute, and the init constant is fed first.
func ComputeMac(hasher crypto.Hasher, cfg policy.Config, macOnlyEncrypted bool, root *tree.DecryptedTree) string {
	if macOnlyEncrypted {
		hasher.Update(MacOnlyEncryptedInitValue)
	}
	tree.WalkLeaves(cfg, macOnlyEncrypted, root, func(_ crypto.KeyPath, v value.Value) {
		hasher.Update(v.CanonicalBytes())
	})
	return hasher.Finalize()
}

// EncryptMac seals a MAC string as an AEAD string value, with the
// last-modified timestamp as associated data. If savedNonce is
// non-nil and its Mac field equals mac, the saved nonce is reused so
// re-encryption is byte-stable; otherwise a fresh nonce is generated.
func EncryptMac(cipher crypto.Cipher, dataKey *crypto.DataKey, mac string, lastModified string, savedNonce *SavedMacNonce) (value.EncryptedValue, error) {
	nonce := savedNonce.nonceFor(mac)
	if nonce == nil {
		fresh, err := crypto.GenerateNonce(cipher.NonceSize())
		if err != nil {
			return value.EncryptedValue{}, err
		}
		nonce = fresh
	}

	ciphertext, tag, err := cipher.Seal(nonce, dataKey, []byte(mac), []byte(lastModified))
	if err != nil {
		return value.EncryptedValue{}, err
	}
	return value.EncryptedValue{
		Cipher:  cipher.Name(),
		Data:    ciphertext,
		Nonce:   nonce,
		Tag:     tag,
		Variant: value.KindString,
	}, nil
}

// DecryptMac opens an encrypted MAC, returning both the plaintext MAC
// string and the nonce it was sealed under (for a subsequent SavedMacNonce).
func DecryptMac(cipher crypto.Cipher, dataKey *crypto.DataKey, encrypted value.EncryptedValue, lastModified string) (string, crypto.Nonce, error) {
	plaintext, err := cipher.Open(encrypted.Nonce, dataKey, encrypted.Data, []byte(lastModified), encrypted.Tag)
	if err != nil {
		return "", nil, err
	}
	return string(plaintext), encrypted.Nonce, nil
}

// SavedMacNonce is the (mac, nonce) pair captured during a decrypt, and
// consumed by a later encrypt: the nonce is reused only if the freshly
// computed MAC equals the one it was captured against.
type SavedMacNonce struct {
	mac   string
	nonce crypto.Nonce
}

// NewSavedMacNonce captures a (mac, nonce) pair.
func NewSavedMacNonce(mac string, nonce crypto.Nonce) *SavedMacNonce {
	return &SavedMacNonce{mac: mac, nonce: nonce}
}

// nonceFor returns the saved nonce if it was captured for the exact
// same MAC value, else nil. Safe to call on a nil receiver.
func (s *SavedMacNonce) nonceFor(mac string) crypto.Nonce {
	if s == nil {
		return nil
	}
	if !bytes.Equal([]byte(s.mac), []byte(mac)) {
		return nil
	}
	return s.nonce
}
