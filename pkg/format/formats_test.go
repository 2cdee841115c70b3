package format

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

func assertDecryptedTreesEqual(t *testing.T, want, got *tree.DecryptedTree) {
	t.Helper()
	if want.Kind() != got.Kind() {
		t.Fatalf("kind mismatch: want %v got %v", want.Kind(), got.Kind())
	}
	switch want.Kind() {
	case tree.KindSequence:
		ws, gs := want.Sequence(), got.Sequence()
		if len(ws) != len(gs) {
			t.Fatalf("sequence length mismatch: want %d got %d", len(ws), len(gs))
		}
		for i := range ws {
			assertDecryptedTreesEqual(t, ws[i], gs[i])
		}
	case tree.KindMap:
		wp, gp := want.Map().Oldest(), got.Map().Oldest()
		for wp != nil && gp != nil {
			if wp.Key != gp.Key {
				t.Fatalf("map key order mismatch: want %q got %q", wp.Key, gp.Key)
			}
			assertDecryptedTreesEqual(t, wp.Value, gp.Value)
			wp, gp = wp.Next(), gp.Next()
		}
		if wp != nil || gp != nil {
			t.Fatalf("map length mismatch")
		}
	case tree.KindNull:
		// nothing further to compare
	case tree.KindLeaf:
		if !want.Leaf().Equal(got.Leaf()) {
			t.Fatalf("leaf mismatch: want %v got %v", want.Leaf(), got.Leaf())
		}
	}
}

func buildSampleDecryptedTree() *tree.DecryptedTree {
	inner := tree.NewMap[value.Value]()
	inner.Set("enabled", tree.Leaf(value.Boolean(true)))
	inner.Set("count", tree.Leaf(value.Integer(42)))

	root := tree.NewMap[value.Value]()
	root.Set("name", tree.Leaf(value.String("cryptconf")))
	root.Set("ratio", tree.Leaf(value.Float(3.5)))
	root.Set("nested", tree.MapNode(inner))
	root.Set("tags", tree.Sequence([]*tree.DecryptedTree{
		tree.Leaf(value.String("a")),
		tree.Leaf(value.String("b")),
	}))
	return tree.MapNode(root)
}

func TestYAMLDecryptedRoundTrip(t *testing.T) {
	adapter := YAML{}
	original := buildSampleDecryptedTree()

	data, err := adapter.DecryptedFromInternal(original)
	if err != nil {
		t.Fatalf("DecryptedFromInternal failed: %v", err)
	}
	got, err := adapter.DecryptedToInternal(data)
	if err != nil {
		t.Fatalf("DecryptedToInternal failed: %v\n%s", err, data)
	}
	assertDecryptedTreesEqual(t, original, got)
}

func TestJSONDecryptedRoundTrip(t *testing.T) {
	adapter := JSON{}
	original := buildSampleDecryptedTree()

	data, err := adapter.DecryptedFromInternal(original)
	if err != nil {
		t.Fatalf("DecryptedFromInternal failed: %v", err)
	}
	got, err := adapter.DecryptedToInternal(data)
	if err != nil {
		t.Fatalf("DecryptedToInternal failed: %v\n%s", err, data)
	}
	assertDecryptedTreesEqual(t, original, got)
}

func TestTOMLDecryptedRoundTrip(t *testing.T) {
	adapter := TOML{}
	original := buildSampleDecryptedTree()

	data, err := adapter.DecryptedFromInternal(original)
	if err != nil {
		t.Fatalf("DecryptedFromInternal failed: %v", err)
	}
	got, err := adapter.DecryptedToInternal(data)
	if err != nil {
		t.Fatalf("DecryptedToInternal failed: %v\n%s", err, data)
	}
	assertDecryptedTreesEqual(t, original, got)
}

func TestTOMLDatetimeRoundTrip(t *testing.T) {
	adapter := TOML{}
	root := tree.NewMap[value.Value]()
	when := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	root.Set("created_at", tree.Leaf(value.Datetime(when)))
	original := tree.MapNode(root)

	data, err := adapter.DecryptedFromInternal(original)
	if err != nil {
		t.Fatalf("DecryptedFromInternal failed: %v", err)
	}
	got, err := adapter.DecryptedToInternal(data)
	if err != nil {
		t.Fatalf("DecryptedToInternal failed: %v\n%s", err, data)
	}
	assertDecryptedTreesEqual(t, original, got)

	leafNode, ok := got.Map().Get("created_at")
	if !ok {
		t.Fatalf("expected created_at key to survive round trip")
	}
	if leafNode.Leaf().Kind() != value.KindDatetime {
		t.Errorf("expected KindDatetime, got %v", leafNode.Leaf().Kind())
	}
}

func TestYAMLAndJSONSerializeDatetimeLeaf(t *testing.T) {
	root := tree.NewMap[value.Value]()
	when := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	root.Set("created_at", tree.Leaf(value.Datetime(when)))
	original := tree.MapNode(root)

	if _, err := YAML{}.DecryptedFromInternal(original); err != nil {
		t.Errorf("YAML DecryptedFromInternal failed on a datetime leaf: %v", err)
	}
	if _, err := JSON{}.DecryptedFromInternal(original); err != nil {
		t.Errorf("JSON DecryptedFromInternal failed on a datetime leaf: %v", err)
	}
}

func TestTOMLRejectsNull(t *testing.T) {
	root := tree.NewMap[value.Value]()
	root.Set("nothing", tree.Null[value.Value]())
	if _, err := TOML{}.DecryptedFromInternal(tree.MapNode(root)); !errors.Is(err, ErrNullUnsupportedInTOML) {
		t.Errorf("expected ErrNullUnsupportedInTOML, got %v", err)
	}
}

func TestYAMLRejectsNonStringKey(t *testing.T) {
	doc := "? [a, b]\n: value\n"
	if _, err := YAML{}.DecryptedToInternal([]byte(doc)); !errors.Is(err, ErrNonStringKey) {
		t.Errorf("expected ErrNonStringKey, got %v", err)
	}
}

func TestJSONIntegerOutOfRange(t *testing.T) {
	doc := []byte(`{"big": 99999999999999999999999999}`)
	_, err := JSON{}.DecryptedToInternal(doc)
	if !errors.Is(err, ErrIntegerOutOfRange) {
		t.Errorf("expected ErrIntegerOutOfRange, got %v", err)
	}
}

func TestJSONAcceptsMaxInt64(t *testing.T) {
	doc := []byte(`{"big": 9223372036854775807}`)
	got, err := JSON{}.DecryptedToInternal(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leafNode, _ := got.Map().Get("big")
	if leafNode.Leaf().IntValue() != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", leafNode.Leaf().IntValue())
	}
}

func TestYAMLEncryptedToInternalRejectsPlaintextScalarAtEncryptedLeaf(t *testing.T) {
	// "count" has no ENC[...] wrapper even though nothing escapes it
	// from encryption — a document claiming to be encrypted must not
	// carry a bare plaintext scalar at such a position.
	doc := []byte("count: 42\n")
	_, _, err := YAML{}.EncryptedToInternal("AES256_GCM", policy.Config{}, doc)
	if !errors.Is(err, ErrPlaintextWhenEncrypted) {
		t.Errorf("expected ErrPlaintextWhenEncrypted, got %v", err)
	}
}

func TestJSONEncryptedToInternalRejectsPlaintextScalarAtEncryptedLeaf(t *testing.T) {
	doc := []byte(`{"enabled": true}`)
	_, _, err := JSON{}.EncryptedToInternal("AES256_GCM", policy.Config{}, doc)
	if !errors.Is(err, ErrPlaintextWhenEncrypted) {
		t.Errorf("expected ErrPlaintextWhenEncrypted, got %v", err)
	}
}

func TestYAMLEncryptedRoundTripPreservesEscapedLeaf(t *testing.T) {
	cipher := crypto.NewAES256GCM()
	cipherName := cipher.Name()
	cfg := policy.UnencryptedSuffix("_unencrypted")

	plainDoc := []byte("token_unencrypted: plaintext\nother: secret\n")
	decTree, err := YAML{}.DecryptedToInternal(plainDoc)
	if err != nil {
		t.Fatalf("DecryptedToInternal failed: %v", err)
	}

	dataKey, err := crypto.GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey failed: %v", err)
	}
	encTree, err := tree.Encrypt(cipher, dataKey, cfg, decTree, nil)
	if err != nil {
		t.Fatalf("tree.Encrypt failed: %v", err)
	}

	raw := EncryptedTreeToRaw(encTree)
	sopsBlock := NewRawMapEmpty()
	data, err := YAML{}.EncryptedFromInternal(encTree, sopsBlock)
	if err != nil {
		t.Fatalf("EncryptedFromInternal failed: %v", err)
	}

	gotTree, gotSops, err := YAML{}.EncryptedToInternal(cipherName, cfg, data)
	if err != nil {
		t.Fatalf("EncryptedToInternal failed: %v\n%s", err, data)
	}
	if gotSops.Kind() != RawMap {
		t.Errorf("expected an (empty) sops mapping to round trip")
	}

	gotRaw := EncryptedTreeToRaw(gotTree)
	if gotRaw.Mapping().Len() != raw.Mapping().Len() {
		t.Errorf("encrypted tree shape changed across round trip")
	}
}
