// Package metadata implements the per-file metadata block: integration
// units, the MAC, the partial-encryption policy, and the last-modified
// timestamp. It is grounded on the keyed-collection discipline in the
// teacher module's pkg/fabric/table.go (see integration.go) and on its
// sentinel-error style (see pkg/credentials/errors.go, pkg/tlv/errors.go).
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// FileMetadata is the metadata block attached to a file, parameterized
// by the state its Mac field is held in: a plain string for a
// decrypted file, an encrypted value.EncryptedValue for an encrypted
// one.
type FileMetadata[M any] struct {
	Integrations      *IntegrationMetadata
	LastModified      time.Time
	Mac               M
	PartialEncryption policy.Config
	MacOnlyEncrypted  bool
}

// DecryptedFileMetadata holds a plaintext MAC string.
type DecryptedFileMetadata = FileMetadata[string]

// EncryptedFileMetadata holds an AEAD-sealed MAC.
type EncryptedFileMetadata = FileMetadata[value.EncryptedValue]

// Encrypt seals this decrypted metadata's MAC, producing encrypted
// metadata with the same integrations, timestamp, and policy.
// savedNonce reuses its nonce only if it was captured for this exact
// MAC value.
func (m *DecryptedFileMetadata) Encrypt(cipher crypto.Cipher, dataKey *crypto.DataKey, savedNonce *SavedMacNonce) (*EncryptedFileMetadata, error) {
	lastModified := FormatTimestamp(m.LastModified)
	encryptedMac, err := EncryptMac(cipher, dataKey, m.Mac, lastModified, savedNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypting mac: %v", ErrMetadata, err)
	}
	return &EncryptedFileMetadata{
		Integrations:      m.Integrations,
		LastModified:      m.LastModified,
		Mac:               encryptedMac,
		PartialEncryption: m.PartialEncryption,
		MacOnlyEncrypted:  m.MacOnlyEncrypted,
	}, nil
}

// Decrypt retrieves the data key from the metadata's integrations and
// decrypts its MAC, returning the decrypted metadata, the data key,
// and a SavedMacNonce for a later byte-stable re-encryption.
func (m *EncryptedFileMetadata) Decrypt(ctx context.Context, cipher crypto.Cipher, reg *integration.Registry) (*DecryptedFileMetadata, *crypto.DataKey, *SavedMacNonce, error) {
	dataKey, err := m.Integrations.DecryptDataKey(ctx, reg)
	if err != nil {
		return nil, nil, nil, err
	}

	lastModified := FormatTimestamp(m.LastModified)
	mac, nonce, err := DecryptMac(cipher, dataKey, m.Mac, lastModified)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: decrypting mac: %v", ErrMetadata, err)
	}

	decrypted := &DecryptedFileMetadata{
		Integrations:      m.Integrations,
		LastModified:      m.LastModified,
		Mac:               mac,
		PartialEncryption: m.PartialEncryption,
		MacOnlyEncrypted:  m.MacOnlyEncrypted,
	}
	return decrypted, dataKey, NewSavedMacNonce(mac, nonce), nil
}

// VerifyMac recomputes the MAC over root and compares it against
// m.Mac, returning *MacMismatchError on mismatch.
func (m *DecryptedFileMetadata) VerifyMac(hasher crypto.Hasher, root *tree.DecryptedTree) error {
	computed := ComputeMac(hasher, m.PartialEncryption, m.MacOnlyEncrypted, root)
	if computed != m.Mac {
		return &MacMismatchError{Computed: computed, Stored: m.Mac}
	}
	return nil
}

// RecomputeMac recomputes and stores the MAC for root, and bumps
// LastModified only if mapChanged — the caller decides that by
// comparing the old and new maps themselves (tree.Equal), not by
// comparing MACs: mac_only_encrypted leaves can change the map without
// changing the MAC, and that must still advance the timestamp.
func (m *DecryptedFileMetadata) RecomputeMac(hasher crypto.Hasher, root *tree.DecryptedTree, mapChanged bool, now time.Time) {
	if mapChanged {
		m.LastModified = now
	}
	m.Mac = ComputeMac(hasher, m.PartialEncryption, m.MacOnlyEncrypted, root)
}
