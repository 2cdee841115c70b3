package format

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// YAMLName is this adapter's wire name.
const YAMLName = "yaml"

// YAML adapts documents in YAML syntax, built on yaml.v3's Node tree so
// key order survives a parse/serialize round trip. Comments, tags,
// anchors and scalar style are not kept: aliases are expanded on parse,
// and output is rebuilt from RawNode with plain default styling.
type YAML struct{}

func (YAML) Name() string { return YAMLName }

func (YAML) DecryptedToInternal(data []byte) (*tree.DecryptedTree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	raw, err := yamlNodeToRaw(documentRoot(&doc))
	if err != nil {
		return nil, err
	}
	return RawToDecryptedTree(raw)
}

func (YAML) DecryptedFromInternal(root *tree.DecryptedTree) ([]byte, error) {
	return marshalYAML(rawToYAMLNode(DecryptedTreeToRaw(root)))
}

func (YAML) EncryptedToInternal(cipherName string, cfg policy.Config, data []byte) (*tree.EncryptedTree, RawNode, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, RawNode{}, err
	}
	full, err := yamlNodeToRaw(documentRoot(&doc))
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

func (YAML) EncryptedFromInternal(root *tree.EncryptedTree, sopsBlock RawNode) ([]byte, error) {
	content := EncryptedTreeToRaw(root)
	full := MergeSopsBlock(content, sopsBlock)
	return marshalYAML(rawToYAMLNode(full))
}

func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	return n
}

func marshalYAML(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// yamlNodeToRaw converts a parsed yaml.Node into the shared RawNode
// form. Mapping keys must be scalars; a non-scalar key (a YAML complex
// key such as a sequence or mapping) is rejected with ErrNonStringKey.
func yamlNodeToRaw(n *yaml.Node) (RawNode, error) {
	switch n.Kind {
	case yaml.MappingNode:
		out := orderedmapNew()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return RawNode{}, ErrNonStringKey
			}
			value, err := yamlNodeToRaw(n.Content[i+1])
			if err != nil {
				return RawNode{}, err
			}
			out.Set(keyNode.Value, value)
		}
		return NewRawMap(out), nil

	case yaml.SequenceNode:
		items := make([]RawNode, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := yamlNodeToRaw(child)
			if err != nil {
				return RawNode{}, err
			}
			items = append(items, v)
		}
		return NewRawSeq(items), nil

	case yaml.ScalarNode:
		return yamlScalarToRaw(n)

	case yaml.AliasNode:
		return yamlNodeToRaw(n.Alias)

	default:
		return NewRawNull(), nil
	}
}

func yamlScalarToRaw(n *yaml.Node) (RawNode, error) {
	switch n.Tag {
	case "!!null":
		return NewRawNull(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return RawNode{}, err
		}
		return NewRawBool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return RawNode{}, fmt.Errorf("%w: %v", ErrIntegerOutOfRange, err)
		}
		return NewRawInt(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return RawNode{}, err
		}
		return NewRawFloat(f), nil
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return RawNode{}, err
		}
		return NewRawDatetime(t), nil
	default:
		return NewRawString(n.Value), nil
	}
}

func rawToYAMLNode(n RawNode) *yaml.Node {
	switch n.Kind() {
	case RawMap:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for pair := n.Mapping().Oldest(); pair != nil; pair = pair.Next() {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Key},
				rawToYAMLNode(pair.Value),
			)
		}
		return node

	case RawSeq:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, child := range n.Seq() {
			node.Content = append(node.Content, rawToYAMLNode(child))
		}
		return node

	case RawNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}

	case RawBool:
		value := "false"
		if n.BoolValue() {
			value = "true"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: value}

	case RawInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(n.IntValue(), 10)}

	case RawFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(n.FloatValue(), 'g', -1, 64)}

	case RawDatetime:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: n.DatetimeValue().Format("2006-01-02T15:04:05Z07:00")}

	default: // RawString
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.StringValue()}
	}
}

