// Package format implements the document adapters (YAML, JSON, TOML)
// that convert between a native document syntax and cryptconf's
// internal Tree representation.
//
// Every adapter funnels through a shared intermediate form, RawNode,
// so the policy-aware tree-building walk (raw.go, tree.go, sops.go)
// is written once instead of once per syntax; only the native
// parse/serialize and the sops-block field names are genuinely
// format-specific. The recursive-descent shape of that shared walk
// follows the teacher module's pkg/tlv reader/writer traversal.
package format

import (
	"errors"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Sentinel errors shared by every adapter; these are the concrete
// identifiers behind the FormatToInternalMap error kind.
var (
	ErrNonStringKey            = errors.New("format: non-string map key")
	ErrIntegerOutOfRange       = errors.New("format: integer out of signed 64-bit range")
	ErrPlaintextWhenEncrypted  = errors.New("format: plaintext scalar found at a position that should be encrypted")
	ErrMalformedEncryptedValue = errors.New("format: malformed ENC[...] value")
)

// RawKind identifies which variant a RawNode holds.
type RawKind int

const (
	RawMap RawKind = iota
	RawSeq
	RawNull
	RawString
	RawBool
	RawInt
	RawFloat
	RawDatetime
)

// RawMapping is the ordered key/value collection backing a RawNode's
// RawMap variant.
type RawMapping = orderedmap.OrderedMap[string, RawNode]

// RawNode is the untyped document tree every format's native parser
// converts into before the policy-aware walk turns it into a
// tree.DecryptedTree or tree.EncryptedTree. It exists because YAML,
// JSON, and TOML each have their own native AST; RawNode is the
// common shape the shared walk operates on.
//
// RawDatetime exists because TOML natively distinguishes timestamps
// from strings; preserving that distinction resolves the open
// question of whether a TOML datetime should round-trip as its own
// type rather than being coerced to a string (see DESIGN.md).
type RawNode struct {
	kind     RawKind
	mapping  *RawMapping
	seq      []RawNode
	str      string
	boolean  bool
	integer  int64
	float    float64
	datetime time.Time
}

func NewRawMap(m *RawMapping) RawNode     { return RawNode{kind: RawMap, mapping: m} }
func NewRawSeq(items []RawNode) RawNode   { return RawNode{kind: RawSeq, seq: items} }
func NewRawNull() RawNode                 { return RawNode{kind: RawNull} }
func NewRawString(s string) RawNode       { return RawNode{kind: RawString, str: s} }
func NewRawBool(b bool) RawNode           { return RawNode{kind: RawBool, boolean: b} }
func NewRawInt(i int64) RawNode           { return RawNode{kind: RawInt, integer: i} }
func NewRawFloat(f float64) RawNode       { return RawNode{kind: RawFloat, float: f} }
func NewRawDatetime(t time.Time) RawNode  { return RawNode{kind: RawDatetime, datetime: t} }

func (n RawNode) Kind() RawKind          { return n.kind }
func (n RawNode) Mapping() *RawMapping   { return n.mapping }
func (n RawNode) Seq() []RawNode         { return n.seq }
func (n RawNode) StringValue() string    { return n.str }
func (n RawNode) BoolValue() bool        { return n.boolean }
func (n RawNode) IntValue() int64        { return n.integer }
func (n RawNode) FloatValue() float64    { return n.float }
func (n RawNode) DatetimeValue() time.Time { return n.datetime }

// NewRawMapEmpty constructs an empty, insertion-ordered RawMap node.
func NewRawMapEmpty() RawNode {
	return NewRawMap(orderedmapNew())
}

// orderedmapNew constructs an empty, insertion-ordered RawMapping.
func orderedmapNew() *RawMapping {
	return orderedmap.New[string, RawNode]()
}

// MapGet looks up a string field of a RawMap node, the pattern every
// sops-block extractor (sops.go) uses.
func (n RawNode) MapGet(key string) (RawNode, bool) {
	if n.kind != RawMap || n.mapping == nil {
		return RawNode{}, false
	}
	return n.mapping.Get(key)
}
