// Package file implements File, the top-level typed document that
// orchestrates the map and metadata state transitions together:
// encrypt, decrypt, the saved-parameters round trip that makes
// re-encryption of an unchanged plaintext byte-stable, and the builder
// that turns plaintext plus a set of integration key-ids into a fresh
// encrypted file.
//
// Decrypted and Encrypted are two concrete, explicitly-constructed
// types rather than one generic type parameterized by a phantom state
// marker (see pkg/tree's own doc comment for the same choice at the map
// layer): there is no setter that lets a caller assign an encrypted map
// into a File carrying decrypted metadata, since the two types simply
// don't share a field of the wrong state to assign into.
package file

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/metadata"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// Decrypted is a file whose map and metadata MAC are both plaintext.
type Decrypted struct {
	Map      *tree.DecryptedTree
	Metadata *metadata.DecryptedFileMetadata
}

// Encrypted is a file whose map leaves and metadata MAC are both
// sealed under the same data key.
type Encrypted struct {
	Map      *tree.EncryptedTree
	Metadata *metadata.EncryptedFileMetadata
}

// SavedParameters captures what a decrypt-and-save-parameters pass
// needs a later encrypt-with-saved-parameters pass to reproduce
// byte-identical ciphertext for unchanged leaves: the data key, the
// per-leaf nonces, and the MAC's own nonce.
type SavedParameters struct {
	DataKey   *crypto.DataKey
	MapNonces *tree.SavedMapNonces
	MacNonce  *metadata.SavedMacNonce
}

// Encrypt retrieves the data key from f's own integration metadata,
// encrypts the map under the partial-encryption policy recorded in
// f's metadata, and encrypts the metadata's MAC. It does not generate
// a fresh data key or touch the integration units: for that, use
// Build.
func (f *Decrypted) Encrypt(ctx context.Context, cipher crypto.Cipher, reg *integration.Registry) (*Encrypted, error) {
	dataKey, err := f.Metadata.Integrations.DecryptDataKey(ctx, reg)
	if err != nil {
		return nil, err
	}
	defer dataKey.Zero()
	return f.encryptWithDataKey(cipher, dataKey, nil, nil)
}

// DecryptAndSaveParameters is Decrypt, but also returns the
// SavedParameters needed to later reproduce this exact ciphertext via
// EncryptWithSavedParameters if the plaintext turns out unchanged.
func (f *Encrypted) DecryptAndSaveParameters(ctx context.Context, cipher crypto.Cipher, reg *integration.Registry) (*Decrypted, *SavedParameters, error) {
	decMeta, dataKey, macNonce, err := f.Metadata.Decrypt(ctx, cipher, reg)
	if err != nil {
		return nil, nil, err
	}

	mapNonces := tree.NewSavedMapNonces()
	decTree, err := tree.Decrypt(cipher, dataKey, decMeta.PartialEncryption, f.Map, mapNonces)
	if err != nil {
		return nil, nil, err
	}

	if err := decMeta.VerifyMac(crypto.NewSHA512Hasher(), decTree); err != nil {
		return nil, nil, err
	}

	decrypted := &Decrypted{Map: decTree, Metadata: decMeta}
	saved := &SavedParameters{DataKey: dataKey, MapNonces: mapNonces, MacNonce: macNonce}
	return decrypted, saved, nil
}

// Decrypt recovers the plaintext file, verifying the stored MAC
// against one recomputed from the decrypted map.
func (f *Encrypted) Decrypt(ctx context.Context, cipher crypto.Cipher, reg *integration.Registry) (*Decrypted, error) {
	decrypted, saved, err := f.DecryptAndSaveParameters(ctx, cipher, reg)
	if saved != nil {
		defer saved.DataKey.Zero()
	}
	return decrypted, err
}

// EncryptWithSavedParameters re-encrypts f's current map and metadata
// using a previously captured SavedParameters: any leaf whose plaintext
// is unchanged from the decrypt it was captured during is re-sealed
// under the exact same nonce, making the output byte-identical to the
// file that produced params when nothing actually changed.
func (f *Decrypted) EncryptWithSavedParameters(cipher crypto.Cipher, params *SavedParameters) (*Encrypted, error) {
	return f.encryptWithDataKey(cipher, params.DataKey, params.MapNonces, params.MacNonce)
}

func (f *Decrypted) encryptWithDataKey(cipher crypto.Cipher, dataKey *crypto.DataKey, mapNonces *tree.SavedMapNonces, macNonce *metadata.SavedMacNonce) (*Encrypted, error) {
	encTree, err := tree.Encrypt(cipher, dataKey, f.Metadata.PartialEncryption, f.Map, mapNonces)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapEncryption, err)
	}

	encMeta, err := f.Metadata.Encrypt(cipher, dataKey, macNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataEncryption, err)
	}

	return &Encrypted{Map: encTree, Metadata: encMeta}, nil
}

// RemoveIntegrationKeyAndRotate decrypts f, removes the unit recorded
// under keyID for the named integration, generates a fresh data key,
// rewraps every remaining integration unit under it, and re-encrypts
// the map and MAC under the new data key — so a private key that can
// no longer unwrap any unit also can no longer decrypt any leaf.
// Saved nonces from the decrypt are not reused: every leaf is sealed
// fresh, since the data key itself changed. ErrIntegrationKeyNotFound
// if the named unit did not exist.
func (f *Encrypted) RemoveIntegrationKeyAndRotate(ctx context.Context, cipher crypto.Cipher, reg *integration.Registry, integrationName, keyID string) (*Encrypted, error) {
	decrypted, err := f.Decrypt(ctx, cipher, reg)
	if err != nil {
		return nil, err
	}

	newDataKey, err := decrypted.Metadata.Integrations.RemoveIntegrationKeyAndRotate(ctx, reg, integrationName, keyID)
	if err != nil {
		return nil, err
	}
	if newDataKey == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrIntegrationKeyNotFound, integrationName, keyID)
	}
	defer newDataKey.Zero()

	return decrypted.encryptWithDataKey(cipher, newDataKey, nil, nil)
}

// SetMap replaces f's map with newMap, always recomputing the MAC over
// it. LastModified only advances if newMap actually differs from the
// map being replaced (tree.Equal): an unchanged plaintext must not
// generate timestamp noise, since that noise would in turn defeat
// byte-stable re-encryption. This is decided on the maps themselves,
// not on whether the MAC changed — a mac_only_encrypted leaf can
// change the map without changing the MAC, and that must still count
// as a change.
func (f *Decrypted) SetMap(hasher crypto.Hasher, newMap *tree.DecryptedTree, now time.Time) {
	mapChanged := !tree.Equal(f.Map, newMap)
	f.Metadata.RecomputeMac(hasher, newMap, mapChanged, now)
	f.Map = newMap
}
