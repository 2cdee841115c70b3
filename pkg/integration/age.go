package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/cryptconf/cryptconf/pkg/crypto"
)

// AgeName is the integration's wire name, used both as the sops
// metadata key and the ROPS_AGE environment variable suffix.
const AgeName = "age"

// Age wraps data keys with filippo.io/age recipients, unwrapping them
// with whatever age identities ROPS_AGE supplies.
type Age struct {
	Keys KeyProvider
}

// NewAge builds an Age integration reading private keys from the
// given provider.
func NewAge(keys KeyProvider) *Age {
	return &Age{Keys: keys}
}

func (a *Age) Name() string           { return AgeName }
func (a *Age) IncludesCreatedAt() bool { return false }

// EncryptDataKey wraps dataKey for the given age1... recipient string.
func (a *Age) EncryptDataKey(ctx context.Context, keyID string, dataKey *crypto.DataKey) (string, error) {
	recipient, err := age.ParseX25519Recipient(keyID)
	if err != nil {
		return "", fmt.Errorf("%w: age: parsing recipient: %v", ErrIntegration, err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("%w: age: %v", ErrIntegration, err)
	}
	if _, err := w.Write(dataKey.Bytes()); err != nil {
		return "", fmt.Errorf("%w: age: %v", ErrIntegration, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: age: %v", ErrIntegration, err)
	}
	return buf.String(), nil
}

// DecryptDataKey tries every age identity supplied via ROPS_AGE against
// the given ciphertext, returning (nil, nil) if none of them are the
// matching recipient's identity.
func (a *Age) DecryptDataKey(ctx context.Context, keyID string, encryptedDataKey string) (*crypto.DataKey, error) {
	privateKeys := a.Keys.PrivateKeys(AgeName)
	if len(privateKeys) == 0 {
		return nil, nil
	}

	identities := make([]age.Identity, 0, len(privateKeys))
	for _, pk := range privateKeys {
		id, err := age.ParseX25519Identity(pk)
		if err != nil {
			return nil, fmt.Errorf("%w: age: parsing identity: %v", ErrIntegration, err)
		}
		identities = append(identities, id)
	}

	// age.Decrypt fails the same way whether no identity matches the
	// recipient stanza or the ciphertext is malformed; since every
	// configured identity parsed successfully above, treat failure
	// here as "no matching private key" rather than a hard error.
	r, err := age.Decrypt(bytes.NewReader([]byte(encryptedDataKey)), identities...)
	if err != nil {
		return nil, nil
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: age: %v", ErrIntegration, err)
	}

	dataKey, err := crypto.DataKeyFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: age: %v", ErrIntegration, err)
	}
	return dataKey, nil
}
