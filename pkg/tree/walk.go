package tree

import (
	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// LeafVisitor is called for every qualifying leaf during a MAC walk,
// in tree traversal order.
type LeafVisitor func(path crypto.KeyPath, v value.Value)

// WalkLeaves visits every non-null leaf of a decrypted tree in
// insertion order. When macOnlyEncrypted is true, only leaves the
// partial-encryption policy does not escape are visited; otherwise
// every leaf is visited. This is the traversal the MAC is computed
// over (see pkg/metadata), kept here because it must match the exact
// key-path resolution the encrypt/decrypt traversal uses.
func WalkLeaves(cfg policy.Config, macOnlyEncrypted bool, root *DecryptedTree, visit LeafVisitor) {
	walkNode(policy.NewResolved(cfg), macOnlyEncrypted, crypto.RootKeyPath, root, visit)
}

func walkNode(resolved policy.Resolved, macOnlyEncrypted bool, path crypto.KeyPath, node *DecryptedTree, visit LeafVisitor) {
	switch node.Kind() {
	case KindSequence:
		for _, child := range node.Sequence() {
			walkNode(resolved, macOnlyEncrypted, path, child, visit)
		}
	case KindMap:
		for pair := node.Map().Oldest(); pair != nil; pair = pair.Next() {
			childPath := path.Child(pair.Key)
			childResolved := resolved.Step(pair.Key)
			walkNode(childResolved, macOnlyEncrypted, childPath, pair.Value, visit)
		}
	case KindNull:
		// Null leaves are never hashed.
	default: // KindLeaf
		if macOnlyEncrypted && resolved.EscapeEncryption() {
			return
		}
		visit(path, node.Leaf())
	}
}
