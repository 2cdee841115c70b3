// Package tree implements the recursive document tree shared by every
// format adapter: Sequence, Map, Null, and Leaf nodes, parameterized
// directly by the leaf payload type rather than by a phantom "state"
// marker. DecryptedTree and EncryptedTree are the two instantiations
// the rest of the module works with.
//
// The typed-variant dispatch follows the teacher module's pkg/tlv
// element encoding (a Kind tag plus kind-specific fields), and the
// Map's insertion-order preservation is delegated to go-ordered-map
// rather than Go's unordered built-in map, since MAC stability and
// round-trip equality both depend on key order surviving a full
// encrypt/decrypt cycle.
package tree

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/cryptconf/cryptconf/pkg/value"
)

// Kind identifies which variant a Tree node holds.
type Kind int

const (
	KindSequence Kind = iota
	KindMap
	KindNull
	KindLeaf
)

// Map is the ordered key/value collection backing a Tree's Map
// variant. Iteration follows insertion order.
type Map[L any] = orderedmap.OrderedMap[string, *Tree[L]]

// NewMap constructs an empty, insertion-ordered Map.
func NewMap[L any]() *Map[L] {
	return orderedmap.New[string, *Tree[L]]()
}

// Tree is the recursive document tree. L is the leaf payload type:
// value.Value for a decrypted tree, value.EncryptedLeaf for an
// encrypted one.
type Tree[L any] struct {
	kind     Kind
	sequence []*Tree[L]
	mapping  *Map[L]
	leaf     L
}

// DecryptedTree holds plaintext values at its leaves.
type DecryptedTree = Tree[value.Value]

// EncryptedTree holds either ciphertext or escaped plaintext at its leaves.
type EncryptedTree = Tree[value.EncryptedLeaf]

// Sequence builds a Sequence node.
func Sequence[L any](items []*Tree[L]) *Tree[L] {
	return &Tree[L]{kind: KindSequence, sequence: items}
}

// MapNode builds a Map node from an existing ordered map.
func MapNode[L any](m *Map[L]) *Tree[L] {
	return &Tree[L]{kind: KindMap, mapping: m}
}

// Null builds a Null node.
func Null[L any]() *Tree[L] {
	return &Tree[L]{kind: KindNull}
}

// Leaf builds a Leaf node.
func Leaf[L any](payload L) *Tree[L] {
	return &Tree[L]{kind: KindLeaf, leaf: payload}
}

// Kind reports which variant this node holds.
func (t *Tree[L]) Kind() Kind { return t.kind }

// Sequence returns the child list; only meaningful if Kind() == KindSequence.
func (t *Tree[L]) Sequence() []*Tree[L] { return t.sequence }

// Map returns the ordered child map; only meaningful if Kind() == KindMap.
func (t *Tree[L]) Map() *Map[L] { return t.mapping }

// Leaf returns the leaf payload; only meaningful if Kind() == KindLeaf.
func (t *Tree[L]) Leaf() L { return t.leaf }
