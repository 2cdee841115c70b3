package file

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/metadata"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// BuilderKey names the integration key-ids a built file's data key
// should be wrapped under for one integration (e.g. Integration: "age",
// KeyIDs: a list of age recipients).
type BuilderKey struct {
	Integration string
	KeyIDs      []string
}

// BuilderConfig is the plain, env-free configuration a Build call takes:
// the integration keys to wrap the fresh data key under, an optional
// partial-encryption policy (the zero value encrypts everything), and
// whether the MAC should cover only the leaves that end up encrypted.
type BuilderConfig struct {
	Keys             []BuilderKey
	Policy           policy.Config
	MacOnlyEncrypted bool
}

// Build constructs a fresh Encrypted file from a decrypted map: it
// generates a new data key, wraps it under every key-id in cfg.Keys,
// computes the MAC, and encrypts the map and metadata. Requires at
// least one key-id across all of cfg.Keys, else ErrMissingKeys.
func Build(ctx context.Context, cipher crypto.Cipher, hasher crypto.Hasher, reg *integration.Registry, plaintext *tree.DecryptedTree, cfg BuilderConfig, now time.Time) (*Encrypted, error) {
	if totalKeys(cfg.Keys) == 0 {
		return nil, ErrMissingKeys
	}

	dataKey, err := crypto.GenerateDataKey()
	if err != nil {
		return nil, err
	}
	defer dataKey.Zero()

	integrations := metadata.NewIntegrationMetadata()
	for _, key := range cfg.Keys {
		integ, ok := reg.ByName(key.Integration)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownIntegration, key.Integration)
		}
		if err := integrations.AddKeys(ctx, integ, key.KeyIDs, dataKey); err != nil {
			return nil, err
		}
	}

	mac := metadata.ComputeMac(hasher, cfg.Policy, cfg.MacOnlyEncrypted, plaintext)
	decMeta := &metadata.DecryptedFileMetadata{
		Integrations:      integrations,
		LastModified:      now,
		Mac:               mac,
		PartialEncryption: cfg.Policy,
		MacOnlyEncrypted:  cfg.MacOnlyEncrypted,
	}
	decrypted := &Decrypted{Map: plaintext, Metadata: decMeta}

	return decrypted.encryptWithDataKey(cipher, dataKey, nil, nil)
}

func totalKeys(keys []BuilderKey) int {
	n := 0
	for _, k := range keys {
		n += len(k.KeyIDs)
	}
	return n
}
