package format

import (
	"fmt"

	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// RawToDecryptedTree converts a parsed document into the internal
// decrypted tree. No ciphertext parsing happens here: every scalar is
// exactly what the native syntax says it is.
func RawToDecryptedTree(n RawNode) (*tree.DecryptedTree, error) {
	switch n.Kind() {
	case RawSeq:
		out := make([]*tree.DecryptedTree, 0, len(n.Seq()))
		for _, child := range n.Seq() {
			t, err := RawToDecryptedTree(child)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return tree.Sequence(out), nil

	case RawMap:
		out := tree.NewMap[value.Value]()
		for pair := n.Mapping().Oldest(); pair != nil; pair = pair.Next() {
			child, err := RawToDecryptedTree(pair.Value)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, child)
		}
		return tree.MapNode(out), nil

	case RawNull:
		return tree.Null[value.Value](), nil

	case RawString:
		return tree.Leaf(value.String(n.StringValue())), nil
	case RawBool:
		return tree.Leaf(value.Boolean(n.BoolValue())), nil
	case RawInt:
		return tree.Leaf(value.Integer(n.IntValue())), nil
	case RawFloat:
		return tree.Leaf(value.Float(n.FloatValue())), nil
	case RawDatetime:
		return tree.Leaf(value.Datetime(n.DatetimeValue())), nil

	default:
		return nil, fmt.Errorf("format: unhandled raw kind %d", n.Kind())
	}
}

// DecryptedTreeToRaw is the inverse of RawToDecryptedTree.
func DecryptedTreeToRaw(t *tree.DecryptedTree) RawNode {
	switch t.Kind() {
	case tree.KindSequence:
		children := t.Sequence()
		out := make([]RawNode, 0, len(children))
		for _, child := range children {
			out = append(out, DecryptedTreeToRaw(child))
		}
		return NewRawSeq(out)

	case tree.KindMap:
		out := orderedmapNew()
		for pair := t.Map().Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, DecryptedTreeToRaw(pair.Value))
		}
		return NewRawMap(out)

	case tree.KindNull:
		return NewRawNull()

	default: // KindLeaf
		return valueToRaw(t.Leaf())
	}
}

func valueToRaw(v value.Value) RawNode {
	switch v.Kind() {
	case value.KindString:
		return NewRawString(v.StringValue())
	case value.KindBoolean:
		return NewRawBool(v.BoolValue())
	case value.KindInteger:
		return NewRawInt(v.IntValue())
	case value.KindDatetime:
		return NewRawDatetime(v.DatetimeValue())
	default: // KindFloat
		return NewRawFloat(v.FloatValue())
	}
}

// RawToEncryptedTree converts a parsed encrypted document into the
// internal encrypted tree, threading the partial-encryption policy
// through the same pre-order walk the map-encryption algorithm uses
// (see pkg/tree), so that resolution over a raw document and
// resolution over an already-built tree agree key for key.
func RawToEncryptedTree(cipherName string, cfg policy.Config, n RawNode) (*tree.EncryptedTree, error) {
	return rawToEncryptedNode(cipherName, policy.NewResolved(cfg), n)
}

func rawToEncryptedNode(cipherName string, resolved policy.Resolved, n RawNode) (*tree.EncryptedTree, error) {
	switch n.Kind() {
	case RawSeq:
		out := make([]*tree.EncryptedTree, 0, len(n.Seq()))
		for _, child := range n.Seq() {
			t, err := rawToEncryptedNode(cipherName, resolved, child)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return tree.Sequence(out), nil

	case RawMap:
		out := tree.NewMap[value.EncryptedLeaf]()
		for pair := n.Mapping().Oldest(); pair != nil; pair = pair.Next() {
			childResolved := resolved.Step(pair.Key)
			child, err := rawToEncryptedNode(cipherName, childResolved, pair.Value)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, child)
		}
		return tree.MapNode(out), nil

	case RawNull:
		return tree.Null[value.EncryptedLeaf](), nil

	default: // a scalar leaf
		if resolved.EscapeEncryption() {
			return tree.Leaf(value.NewEscapedLeaf(rawScalarToValue(n))), nil
		}

		if n.Kind() != RawString {
			return nil, ErrPlaintextWhenEncrypted
		}
		ev, err := value.ParseEncryptedValue(n.StringValue(), cipherName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEncryptedValue, err)
		}
		return tree.Leaf(value.NewEncryptedLeaf(ev)), nil
	}
}

func rawScalarToValue(n RawNode) value.Value {
	switch n.Kind() {
	case RawBool:
		return value.Boolean(n.BoolValue())
	case RawInt:
		return value.Integer(n.IntValue())
	case RawFloat:
		return value.Float(n.FloatValue())
	case RawDatetime:
		return value.Datetime(n.DatetimeValue())
	default:
		return value.String(n.StringValue())
	}
}

// EncryptedTreeToRaw is the inverse of RawToEncryptedTree.
func EncryptedTreeToRaw(t *tree.EncryptedTree) RawNode {
	switch t.Kind() {
	case tree.KindSequence:
		children := t.Sequence()
		out := make([]RawNode, 0, len(children))
		for _, child := range children {
			out = append(out, EncryptedTreeToRaw(child))
		}
		return NewRawSeq(out)

	case tree.KindMap:
		out := orderedmapNew()
		for pair := t.Map().Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, EncryptedTreeToRaw(pair.Value))
		}
		return NewRawMap(out)

	case tree.KindNull:
		return NewRawNull()

	default: // KindLeaf
		leaf := t.Leaf()
		if leaf.Form == value.FormEscaped {
			return valueToRaw(leaf.Escaped)
		}
		return NewRawString(leaf.Encrypted.String())
	}
}
