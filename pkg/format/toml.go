package format

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	toml "github.com/pelletier/go-toml"

	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// TOMLName is this adapter's wire name.
const TOMLName = "toml"

// ErrNullUnsupportedInTOML is returned when a decrypted tree contains a
// null leaf: TOML has no null literal, unlike YAML and JSON.
var ErrNullUnsupportedInTOML = errors.New("format: toml cannot represent a null value")

// TOML adapts documents in TOML syntax, built on go-toml's Tree type.
// Tree.Keys preserves insertion order, which is what lets RawMapping's
// order round-trip; RawDatetime exists specifically for this adapter,
// since go-toml decodes TOML's native datetime literals as time.Time
// rather than strings.
type TOML struct{}

func (TOML) Name() string { return TOMLName }

func (TOML) DecryptedToInternal(data []byte) (*tree.DecryptedTree, error) {
	raw, err := tomlToRaw(data)
	if err != nil {
		return nil, err
	}
	return RawToDecryptedTree(raw)
}

func (TOML) DecryptedFromInternal(root *tree.DecryptedTree) ([]byte, error) {
	return marshalTOML(DecryptedTreeToRaw(root))
}

func (TOML) EncryptedToInternal(cipherName string, cfg policy.Config, data []byte) (*tree.EncryptedTree, RawNode, error) {
	full, err := tomlToRaw(data)
	if err != nil {
		return nil, RawNode{}, err
	}
	content, sopsBlock, _ := SplitSopsBlock(full)
	encTree, err := RawToEncryptedTree(cipherName, cfg, content)
	if err != nil {
		return nil, RawNode{}, err
	}
	return encTree, sopsBlock, nil
}

func (TOML) EncryptedFromInternal(root *tree.EncryptedTree, sopsBlock RawNode) ([]byte, error) {
	content := EncryptedTreeToRaw(root)
	full := MergeSopsBlock(content, sopsBlock)
	return marshalTOML(full)
}

func tomlToRaw(data []byte) (RawNode, error) {
	t, err := toml.LoadBytes(data)
	if err != nil {
		return RawNode{}, err
	}
	return tomlTreeToRaw(t), nil
}

func tomlTreeToRaw(t *toml.Tree) RawNode {
	out := orderedmapNew()
	for _, key := range t.Keys() {
		out.Set(key, tomlValueToRaw(t.GetPath([]string{key})))
	}
	return NewRawMap(out)
}

func tomlValueToRaw(v interface{}) RawNode {
	switch val := v.(type) {
	case *toml.Tree:
		return tomlTreeToRaw(val)
	case []*toml.Tree:
		items := make([]RawNode, 0, len(val))
		for _, sub := range val {
			items = append(items, tomlTreeToRaw(sub))
		}
		return NewRawSeq(items)
	case []interface{}:
		items := make([]RawNode, 0, len(val))
		for _, elem := range val {
			items = append(items, tomlValueToRaw(elem))
		}
		return NewRawSeq(items)
	case int64:
		return NewRawInt(val)
	case float64:
		return NewRawFloat(val)
	case bool:
		return NewRawBool(val)
	case time.Time:
		return NewRawDatetime(val)
	case string:
		return NewRawString(val)
	default:
		return NewRawNull()
	}
}

func marshalTOML(n RawNode) ([]byte, error) {
	t, err := rawMapToTomlTree(n)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rawMapToTomlTree(n RawNode) (*toml.Tree, error) {
	if n.Kind() != RawMap {
		return nil, fmt.Errorf("format: toml document root must be a mapping, got kind %d", n.Kind())
	}
	t, err := toml.TreeFromMap(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	for pair := n.Mapping().Oldest(); pair != nil; pair = pair.Next() {
		value, err := rawValueToTomlValue(pair.Value)
		if err != nil {
			return nil, err
		}
		t.SetPath([]string{pair.Key}, value)
	}
	return t, nil
}

func rawValueToTomlValue(n RawNode) (interface{}, error) {
	switch n.Kind() {
	case RawMap:
		return rawMapToTomlTree(n)

	case RawSeq:
		items := n.Seq()
		if len(items) > 0 && allMaps(items) {
			subtrees := make([]*toml.Tree, 0, len(items))
			for _, child := range items {
				sub, err := rawMapToTomlTree(child)
				if err != nil {
					return nil, err
				}
				subtrees = append(subtrees, sub)
			}
			return subtrees, nil
		}
		values := make([]interface{}, 0, len(items))
		for _, child := range items {
			v, err := rawValueToTomlValue(child)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil

	case RawNull:
		return nil, ErrNullUnsupportedInTOML

	case RawBool:
		return n.BoolValue(), nil
	case RawInt:
		return n.IntValue(), nil
	case RawFloat:
		return n.FloatValue(), nil
	case RawDatetime:
		return n.DatetimeValue(), nil
	default: // RawString
		return n.StringValue(), nil
	}
}

func allMaps(nodes []RawNode) bool {
	for _, n := range nodes {
		if n.Kind() != RawMap {
			return false
		}
	}
	return true
}
