package tree

import (
	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// Encrypt walks a decrypted tree in pre-order, encrypting every leaf
// that the partial-encryption policy does not escape. savedNonces may
// be nil; when non-nil, a leaf whose (path, value) pair is present is
// re-sealed under its saved nonce instead of a fresh one, which is
// what makes re-encryption of an unchanged plaintext byte-stable.
func Encrypt(cipher crypto.Cipher, dataKey *crypto.DataKey, cfg policy.Config, plain *DecryptedTree, savedNonces *SavedMapNonces) (*EncryptedTree, error) {
	return encryptNode(cipher, dataKey, policy.NewResolved(cfg), crypto.RootKeyPath, plain, savedNonces)
}

func encryptNode(cipher crypto.Cipher, dataKey *crypto.DataKey, resolved policy.Resolved, path crypto.KeyPath, node *DecryptedTree, savedNonces *SavedMapNonces) (*EncryptedTree, error) {
	switch node.Kind() {
	case KindSequence:
		out := make([]*EncryptedTree, 0, len(node.Sequence()))
		for _, child := range node.Sequence() {
			encChild, err := encryptNode(cipher, dataKey, resolved, path, child, savedNonces)
			if err != nil {
				return nil, err
			}
			out = append(out, encChild)
		}
		return Sequence(out), nil

	case KindMap:
		out := NewMap[value.EncryptedLeaf]()
		for pair := node.Map().Oldest(); pair != nil; pair = pair.Next() {
			childPath := path.Child(pair.Key)
			childResolved := resolved.Step(pair.Key)
			encChild, err := encryptNode(cipher, dataKey, childResolved, childPath, pair.Value, savedNonces)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, encChild)
		}
		return MapNode(out), nil

	case KindNull:
		return Null[value.EncryptedLeaf](), nil

	default: // KindLeaf
		v := node.Leaf()
		if resolved.EscapeEncryption() {
			return Leaf(value.NewEscapedLeaf(v)), nil
		}

		nonce, ok := lookupNonce(savedNonces, path, v)
		if !ok {
			fresh, err := crypto.GenerateNonce(cipher.NonceSize())
			if err != nil {
				return nil, err
			}
			nonce = fresh
		}

		plaintext := v.CanonicalBytes()
		aad := path.Bytes()
		ciphertext, tag, err := cipher.Seal(nonce, dataKey, plaintext, aad)
		if err != nil {
			return nil, ErrDecryptValue
		}

		ev := value.EncryptedValue{
			Cipher:  cipher.Name(),
			Data:    ciphertext,
			Nonce:   nonce,
			Tag:     tag,
			Variant: v.Kind(),
		}
		return Leaf(value.NewEncryptedLeaf(ev)), nil
	}
}

func lookupNonce(saved *SavedMapNonces, path crypto.KeyPath, v value.Value) (crypto.Nonce, bool) {
	if saved == nil {
		return nil, false
	}
	return saved.Get(path, NewValueKey(v))
}

// Decrypt walks an encrypted tree in pre-order, decrypting every
// non-escaped leaf. When savedNonces is non-nil, every decrypted
// leaf's (path, value, nonce) triple is recorded into it, so a
// subsequent Encrypt call can reproduce identical ciphertext for
// leaves whose plaintext hasn't changed.
func Decrypt(cipher crypto.Cipher, dataKey *crypto.DataKey, cfg policy.Config, encrypted *EncryptedTree, savedNonces *SavedMapNonces) (*DecryptedTree, error) {
	return decryptNode(cipher, dataKey, policy.NewResolved(cfg), crypto.RootKeyPath, encrypted, savedNonces)
}

func decryptNode(cipher crypto.Cipher, dataKey *crypto.DataKey, resolved policy.Resolved, path crypto.KeyPath, node *EncryptedTree, savedNonces *SavedMapNonces) (*DecryptedTree, error) {
	switch node.Kind() {
	case KindSequence:
		out := make([]*DecryptedTree, 0, len(node.Sequence()))
		for _, child := range node.Sequence() {
			decChild, err := decryptNode(cipher, dataKey, resolved, path, child, savedNonces)
			if err != nil {
				return nil, err
			}
			out = append(out, decChild)
		}
		return Sequence(out), nil

	case KindMap:
		out := NewMap[value.Value]()
		for pair := node.Map().Oldest(); pair != nil; pair = pair.Next() {
			childPath := path.Child(pair.Key)
			childResolved := resolved.Step(pair.Key)
			decChild, err := decryptNode(cipher, dataKey, childResolved, childPath, pair.Value, savedNonces)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, decChild)
		}
		return MapNode(out), nil

	case KindNull:
		return Null[value.Value](), nil

	default: // KindLeaf
		leaf := node.Leaf()
		if leaf.Form == value.FormEscaped {
			return Leaf(leaf.Escaped), nil
		}

		ev := leaf.Encrypted
		plaintext, err := cipher.Open(ev.Nonce, dataKey, ev.Data, path.Bytes(), ev.Tag)
		if err != nil {
			return nil, ErrDecryptValue
		}

		v, err := value.FromCanonicalBytes(ev.Variant, plaintext)
		if err != nil {
			return nil, ErrDecryptValue
		}

		if savedNonces != nil {
			savedNonces.Put(path, NewValueKey(v), ev.Nonce)
		}
		return Leaf(v), nil
	}
}
