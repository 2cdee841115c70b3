package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
)

// JSONName is this adapter's wire name.
const JSONName = "json"

// JSON adapts documents in JSON syntax. JSON has no native integer/
// float distinction or datetime type, so json.Decoder.UseNumber keeps
// numeric literals exact until RawNode classifies them, and RawDatetime
// never appears on this path.
type JSON struct{}

func (JSON) Name() string { return JSONName }

func (JSON) DecryptedToInternal(data []byte) (*tree.DecryptedTree, error) {
	raw, err := jsonToRaw(data)
	if err != nil {
		return nil, err
	}
	return RawToDecryptedTree(raw)
}

func (JSON) DecryptedFromInternal(root *tree.DecryptedTree) ([]byte, error) {
	return marshalJSON(DecryptedTreeToRaw(root))
}

func (JSON) EncryptedToInternal(cipherName string, cfg policy.Config, data []byte) (*tree.EncryptedTree, RawNode, error) {
	full, err := jsonToRaw(data)
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

func (JSON) EncryptedFromInternal(root *tree.EncryptedTree, sopsBlock RawNode) ([]byte, error) {
	content := EncryptedTreeToRaw(root)
	full := MergeSopsBlock(content, sopsBlock)
	return marshalJSON(full)
}

func jsonToRaw(data []byte) (RawNode, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeJSONValue(dec)
	if err != nil {
		return RawNode{}, err
	}
	return n, nil
}

// decodeJSONValue reads one JSON value from dec using its Token API,
// rather than unmarshaling into interface{}, so object key order
// survives (encoding/json's map decoding does not preserve it).
func decodeJSONValue(dec *json.Decoder) (RawNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return RawNode{}, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (RawNode, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := orderedmapNew()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return RawNode{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return RawNode{}, ErrNonStringKey
				}
				value, err := decodeJSONValue(dec)
				if err != nil {
					return RawNode{}, err
				}
				out.Set(key, value)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return RawNode{}, err
			}
			return NewRawMap(out), nil

		case '[':
			var items []RawNode
			for dec.More() {
				value, err := decodeJSONValue(dec)
				if err != nil {
					return RawNode{}, err
				}
				items = append(items, value)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return RawNode{}, err
			}
			return NewRawSeq(items), nil

		default:
			return RawNode{}, fmt.Errorf("format: unexpected json delimiter %v", t)
		}

	case nil:
		return NewRawNull(), nil
	case bool:
		return NewRawBool(t), nil
	case string:
		return NewRawString(t), nil
	case json.Number:
		return jsonNumberToRaw(t)
	default:
		return RawNode{}, fmt.Errorf("format: unexpected json token %T", tok)
	}
}

func jsonNumberToRaw(n json.Number) (RawNode, error) {
	if !strings.ContainsAny(n.String(), ".eE") {
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return RawNode{}, fmt.Errorf("%w: %v", ErrIntegerOutOfRange, err)
		}
		return NewRawInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return RawNode{}, fmt.Errorf("%w: %v", ErrIntegerOutOfRange, err)
	}
	return NewRawFloat(f), nil
}

func writeJSONString(w io.Writer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func marshalJSON(n RawNode) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSONValue(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSONValue(w io.Writer, n RawNode) error {
	switch n.Kind() {
	case RawMap:
		if _, err := io.WriteString(w, "{"); err != nil {
			return err
		}
		first := true
		for pair := n.Mapping().Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false
			keyJSON, err := json.Marshal(pair.Key)
			if err != nil {
				return err
			}
			if _, err := w.Write(keyJSON); err != nil {
				return err
			}
			if _, err := io.WriteString(w, ":"); err != nil {
				return err
			}
			if err := encodeJSONValue(w, pair.Value); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "}")
		return err

	case RawSeq:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, child := range n.Seq() {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := encodeJSONValue(w, child); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err

	case RawNull:
		_, err := io.WriteString(w, "null")
		return err

	case RawBool:
		_, err := io.WriteString(w, strconv.FormatBool(n.BoolValue()))
		return err

	case RawInt:
		_, err := io.WriteString(w, strconv.FormatInt(n.IntValue(), 10))
		return err

	case RawFloat:
		_, err := io.WriteString(w, strconv.FormatFloat(n.FloatValue(), 'g', -1, 64))
		return err

	case RawDatetime:
		return writeJSONString(w, n.DatetimeValue().Format("2006-01-02T15:04:05Z07:00"))

	default: // RawString
		return writeJSONString(w, n.StringValue())
	}
}
