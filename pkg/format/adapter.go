package format

import (
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// Adapter converts between a document's native on-disk syntax and the
// internal tree representation, in both the decrypted and encrypted
// directions. Each syntax (YAML, JSON, TOML) implements this over its
// own parser/serializer, funneling through the shared RawNode walk in
// tree.go for everything that isn't syntax-specific.
type Adapter interface {
	// Name identifies the syntax; it is the key AdapterByName looks
	// adapters up by.
	Name() string

	// DecryptedToInternal parses a plaintext document (no sops block)
	// into the internal decrypted tree.
	DecryptedToInternal(data []byte) (*tree.DecryptedTree, error)

	// DecryptedFromInternal serializes a decrypted tree back to the
	// native syntax, with no sops block.
	DecryptedFromInternal(root *tree.DecryptedTree) ([]byte, error)

	// EncryptedToInternal parses an encrypted document, splitting its
	// sops block from its content and converting the content into the
	// internal encrypted tree under the given partial-encryption
	// policy. Returns the tree and the raw sops block for the caller to
	// hand to RawToEncryptedMetadata.
	EncryptedToInternal(cipherName string, cfg policy.Config, data []byte) (*tree.EncryptedTree, RawNode, error)

	// EncryptedFromInternal serializes an encrypted tree and a sops
	// block back into the native syntax, with the sops block merged in.
	EncryptedFromInternal(root *tree.EncryptedTree, sopsBlock RawNode) ([]byte, error)
}
