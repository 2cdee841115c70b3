// Package integration wraps the key-management backends a cryptconf
// file can wrap its data key under: age and AWS KMS. Each backend
// implements the Integration interface; private key material is
// discovered from environment variables following the teacher
// module's SessionFromEnv convention, generalized here to a
// ROPS_<NAME> naming scheme so new integrations only need to register
// their own name.
package integration

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/cryptconf/cryptconf/pkg/crypto"
)

// ErrIntegration covers key parsing, wrapping, network, and env-var
// failures from a KMS integration.
var ErrIntegration = errors.New("integration: operation failed")

// Integration is a key-management backend capable of wrapping and
// unwrapping a file's data key.
//
// DecryptDataKey returns (nil, nil) when no private key configured on
// this host matches the given key id — that is not a failure, it just
// means this integration cannot help and the caller should try the
// next one. A non-nil error means the backend itself failed (malformed
// ciphertext, network error, auth failure).
type Integration interface {
	// Name identifies the integration (e.g. "age", "aws_kms") and picks
	// its ROPS_<NAME> environment variable. The field name its units are
	// stored under in the sops metadata block is chosen by pkg/format
	// ("age" and "kms" respectively).
	Name() string

	// IncludesCreatedAt reports whether this integration stamps a
	// created_at timestamp on each metadata unit it produces.
	IncludesCreatedAt() bool

	// EncryptDataKey wraps dataKey for the recipient identified by keyID.
	EncryptDataKey(ctx context.Context, keyID string, dataKey *crypto.DataKey) (string, error)

	// DecryptDataKey attempts to unwrap encryptedDataKey using whatever
	// private key material is available on this host for keyID.
	DecryptDataKey(ctx context.Context, keyID string, encryptedDataKey string) (*crypto.DataKey, error)
}

// KeyProvider discovers private key material for an integration.
type KeyProvider interface {
	// PrivateKeys returns the private keys configured for the named
	// integration, or nil if none are configured.
	PrivateKeys(integrationName string) []string
}

// OSEnvKeyProvider reads private key material from ROPS_<NAME> (name
// upper-cased, e.g. ROPS_AGE, ROPS_AWS_KMS), as a comma-separated list.
type OSEnvKeyProvider struct{}

// PrivateKeys implements KeyProvider by reading the process environment.
func (OSEnvKeyProvider) PrivateKeys(integrationName string) []string {
	envVar := "ROPS_" + strings.ToUpper(integrationName)
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
