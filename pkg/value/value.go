// Package value implements the typed leaf value model: the Value sum
// type, its canonical byte encoding (used both as AEAD plaintext and as
// MAC input), and the ENC[...] wire codec for encrypted leaves.
//
// The typed-variant dispatch here is grounded on the tagged-element
// idiom in the teacher module's pkg/tlv (element.go/tag.go): a closed,
// small set of kinds, each carrying its own payload, with a Kind tag
// driving encode/decode instead of an interface per kind. Cryptconf's
// wire format is bracket-delimited text, not TLV's binary framing, so
// the codec itself is new, but the "one struct, a kind tag, and
// kind-specific fields" shape is the same discipline pkg/tlv uses for
// Matter's typed elements.
package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrMalformedCanonicalBytes is returned when decrypted plaintext does
// not parse back into the Kind its ciphertext claimed.
var ErrMalformedCanonicalBytes = errors.New("value: malformed canonical byte form")

// Kind identifies which variant a Value (or encrypted leaf) holds.
type Kind int

const (
	KindString Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindDatetime
)

// String implements fmt.Stringer, also used as the wire `type:` token.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "str"
	case KindBoolean:
		return "bool"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindDatetime:
		return "datetime"
	default:
		return "unknown"
	}
}

// ParseKind parses the wire `type:` token back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "str":
		return KindString, nil
	case "bool":
		return KindBoolean, nil
	case "int":
		return KindInteger, nil
	case "float":
		return KindFloat, nil
	case "datetime":
		return KindDatetime, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// ErrUnknownVariant is returned when a `type:` token doesn't name one of
// the five supported variants.
var ErrUnknownVariant = errors.New("value: unknown type variant")

// ErrIntegerOutOfRange is returned when ingesting an integer that does not
// fit in a signed 64-bit value (e.g. an unsigned value above math.MaxInt64).
var ErrIntegerOutOfRange = errors.New("value: integer out of signed 64-bit range")

// Value is the decrypted leaf payload: a closed sum of the five scalar
// types (string, integer, float, boolean, datetime) a cryptconf document
// may hold at a leaf position.
type Value struct {
	kind     Kind
	str      string
	boolean  bool
	integer  int64
	float    float64
	datetime time.Time
}

// String builds a String value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Boolean builds a Boolean value.
func Boolean(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Integer builds an Integer value from a signed 64-bit int.
func Integer(i int64) Value { return Value{kind: KindInteger, integer: i} }

// IntegerFromUint64 builds an Integer value from an unsigned 64-bit int,
// rejecting values that don't fit in int64 per the spec's range invariant.
func IntegerFromUint64(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, ErrIntegerOutOfRange
	}
	return Integer(int64(u)), nil
}

// Float builds a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, float: f} }

// Datetime builds a Datetime value. It exists specifically for TOML,
// whose native timestamp literals would otherwise have to be coerced
// to plain strings and lose their type across an encrypt/decrypt cycle.
func Datetime(t time.Time) Value { return Value{kind: KindDatetime, datetime: t} }

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// StringValue returns the string payload; only meaningful if Kind() == KindString.
func (v Value) StringValue() string { return v.str }

// BoolValue returns the boolean payload; only meaningful if Kind() == KindBoolean.
func (v Value) BoolValue() bool { return v.boolean }

// IntValue returns the integer payload; only meaningful if Kind() == KindInteger.
func (v Value) IntValue() int64 { return v.integer }

// FloatValue returns the float payload; only meaningful if Kind() == KindFloat.
func (v Value) FloatValue() float64 { return v.float }

// DatetimeValue returns the datetime payload; only meaningful if Kind() == KindDatetime.
func (v Value) DatetimeValue() time.Time { return v.datetime }

// datetimeWireLayout is the RFC3339 form used for a Datetime value's
// canonical byte encoding and its ENC[...] plaintext.
const datetimeWireLayout = "2006-01-02T15:04:05Z07:00"

// Equal reports whether two values are identical in kind and payload. It
// is the equality used by the saved-nonce maps keyed by (KeyPath, Value):
// a nonce is only reused when the plaintext is byte-for-byte unchanged.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindBoolean:
		return v.boolean == other.boolean
	case KindInteger:
		return v.integer == other.integer
	case KindFloat:
		return v.float == other.float
	case KindDatetime:
		return v.datetime.Equal(other.datetime)
	default:
		return false
	}
}

// CanonicalBytes renders the value's canonical byte form, used both as
// the AEAD plaintext for an encrypted leaf and as MAC input. Every
// implementation of this format must agree bit-for-bit with the SOPS
// reference ecosystem for round trips to work; float rendering in
// particular is a documented fragility (see DESIGN.md).
func (v Value) CanonicalBytes() []byte {
	switch v.kind {
	case KindString:
		return []byte(v.str)
	case KindBoolean:
		if v.boolean {
			return []byte("True")
		}
		return []byte("False")
	case KindInteger:
		return []byte(strconv.FormatInt(v.integer, 10))
	case KindFloat:
		return []byte(strconv.FormatFloat(v.float, 'f', -1, 64))
	case KindDatetime:
		return []byte(v.datetime.Format(datetimeWireLayout))
	default:
		return nil
	}
}

// FromCanonicalBytes parses a decrypted leaf's plaintext back into a
// typed Value according to the variant recorded in its ciphertext. It
// is the inverse of CanonicalBytes.
func FromCanonicalBytes(kind Kind, b []byte) (Value, error) {
	switch kind {
	case KindString:
		return String(string(b)), nil
	case KindBoolean:
		switch string(b) {
		case "True":
			return Boolean(true), nil
		case "False":
			return Boolean(false), nil
		default:
			return Value{}, fmt.Errorf("%w: boolean %q", ErrMalformedCanonicalBytes, b)
		}
	case KindInteger:
		i, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: integer %q: %v", ErrMalformedCanonicalBytes, b, err)
		}
		return Integer(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: float %q: %v", ErrMalformedCanonicalBytes, b, err)
		}
		return Float(f), nil
	case KindDatetime:
		t, err := time.Parse(datetimeWireLayout, string(b))
		if err != nil {
			return Value{}, fmt.Errorf("%w: datetime %q: %v", ErrMalformedCanonicalBytes, b, err)
		}
		return Datetime(t), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown kind %d", ErrUnknownVariant, kind)
	}
}
