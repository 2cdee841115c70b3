package value

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cryptconf/cryptconf/pkg/crypto"
)

// wirePrefix and wireSuffix delimit the ENC[...] wire form.
const (
	wirePrefix = "ENC["
	wireSuffix = "]"
)

// Errors returned while parsing the ENC[...] wire form. These feed into
// format.ErrMalformedEncryptedValue at the adapter layer.
var (
	ErrMissingPrefix  = errors.New("value: missing ENC[ prefix")
	ErrMissingSuffix  = errors.New("value: missing ] suffix")
	ErrMalformedField = errors.New("value: malformed field in ENC[...] value")
	ErrUnknownCipher  = errors.New("value: unknown cipher name")
)

// EncryptedValue is the wire form of an encrypted leaf:
// ENC[<cipher-name>,data:<b64>,iv:<b64>,tag:<b64>,type:<variant>].
type EncryptedValue struct {
	Cipher  string
	Data    []byte
	Nonce   crypto.Nonce
	Tag     crypto.AuthorizationTag
	Variant Kind
}

// String renders the bit-exact ENC[...] wire form.
func (ev EncryptedValue) String() string {
	var b strings.Builder
	b.WriteString(wirePrefix)
	b.WriteString(ev.Cipher)
	b.WriteString(",data:")
	b.WriteString(crypto.EncodeBase64(ev.Data))
	b.WriteString(",iv:")
	b.WriteString(crypto.EncodeBase64(ev.Nonce))
	b.WriteString(",tag:")
	b.WriteString(crypto.EncodeBase64(ev.Tag))
	b.WriteString(",type:")
	b.WriteString(ev.Variant.String())
	b.WriteString(wireSuffix)
	return b.String()
}

// ParseEncryptedValue parses the ENC[...] wire form. The expectedCipher
// name is validated so an encrypted document referencing an unsupported
// cipher fails fast rather than silently mis-decoding.
func ParseEncryptedValue(s string, expectedCipher string) (EncryptedValue, error) {
	ev, err := ParseEncryptedValueAnyCipher(s)
	if err != nil {
		return EncryptedValue{}, err
	}
	if ev.Cipher != expectedCipher {
		return EncryptedValue{}, fmt.Errorf("%w: %q", ErrUnknownCipher, ev.Cipher)
	}
	return ev, nil
}

// ParseEncryptedValueAnyCipher parses the ENC[...] wire form without
// validating the cipher name against an expected value. It exists for
// the sops metadata block's mac field, whose own cipher name is only
// known once the field itself has been parsed.
func ParseEncryptedValueAnyCipher(s string) (EncryptedValue, error) {
	if !strings.HasPrefix(s, wirePrefix) {
		return EncryptedValue{}, ErrMissingPrefix
	}
	if !strings.HasSuffix(s, wireSuffix) {
		return EncryptedValue{}, ErrMissingSuffix
	}
	inner := s[len(wirePrefix) : len(s)-len(wireSuffix)]

	fields := strings.Split(inner, ",")
	if len(fields) != 5 {
		return EncryptedValue{}, fmt.Errorf("%w: expected 5 comma-separated fields, got %d", ErrMalformedField, len(fields))
	}

	ev := EncryptedValue{Cipher: fields[0]}

	for _, field := range fields[1:] {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			return EncryptedValue{}, fmt.Errorf("%w: %q", ErrMalformedField, field)
		}
		switch key {
		case "data":
			b, err := crypto.DecodeBase64(val)
			if err != nil {
				return EncryptedValue{}, fmt.Errorf("%w: data: %v", ErrMalformedField, err)
			}
			ev.Data = b
		case "iv":
			b, err := crypto.DecodeBase64(val)
			if err != nil {
				return EncryptedValue{}, fmt.Errorf("%w: iv: %v", ErrMalformedField, err)
			}
			ev.Nonce = crypto.Nonce(b)
		case "tag":
			b, err := crypto.DecodeBase64(val)
			if err != nil {
				return EncryptedValue{}, fmt.Errorf("%w: tag: %v", ErrMalformedField, err)
			}
			ev.Tag = crypto.AuthorizationTag(b)
		case "type":
			k, err := ParseKind(val)
			if err != nil {
				return EncryptedValue{}, err
			}
			ev.Variant = k
		default:
			return EncryptedValue{}, fmt.Errorf("%w: unknown field %q", ErrMalformedField, key)
		}
	}

	return ev, nil
}

// LeafForm distinguishes an encrypted leaf from one that escaped
// encryption under the partial-encryption policy.
type LeafForm int

const (
	FormEncrypted LeafForm = iota
	FormEscaped
)

// EncryptedLeaf is the leaf representation of an encrypted tree: either
// an EncryptedValue, or a plaintext Value that was escaped from
// encryption by the partial-encryption policy.
type EncryptedLeaf struct {
	Form      LeafForm
	Encrypted EncryptedValue
	Escaped   Value
}

// NewEncryptedLeaf wraps an EncryptedValue.
func NewEncryptedLeaf(ev EncryptedValue) EncryptedLeaf {
	return EncryptedLeaf{Form: FormEncrypted, Encrypted: ev}
}

// NewEscapedLeaf wraps a plaintext Value that bypassed encryption.
func NewEscapedLeaf(v Value) EncryptedLeaf {
	return EncryptedLeaf{Form: FormEscaped, Escaped: v}
}
