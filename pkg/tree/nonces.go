package tree

import (
	"time"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// nonceKey is the composite key a saved nonce is looked up by: the
// leaf's key path and its exact plaintext value. A saved nonce is only
// reused when both match, which is what makes byte-stable
// re-encryption safe (reusing a nonce under a changed plaintext would
// break AEAD's single-use-nonce guarantee).
type nonceKey struct {
	path  crypto.KeyPath
	value ValueKey
}

// ValueKey is the comparable projection of a value.Value used as half
// of a saved-nonce lookup key. It is defined in this package (rather
// than imported as value.Value directly) only to avoid importing
// pkg/value's full API surface into the map key type; construction
// happens via NewValueKey.
type ValueKey struct {
	kind     int
	str      string
	boolean  bool
	integer  int64
	float    float64
	datetime time.Time
}

// NewValueKey projects a value.Value into its comparable map-key form.
func NewValueKey(v value.Value) ValueKey {
	return ValueKey{
		kind:     int(v.Kind()),
		str:      v.StringValue(),
		boolean:  v.BoolValue(),
		integer:  v.IntValue(),
		float:    v.FloatValue(),
		datetime: v.DatetimeValue(),
	}
}

// SavedMapNonces is the (key path, plaintext value) -> nonce table
// captured during a decrypt-and-save-nonces traversal, later consumed
// by an encrypt-with-saved-nonces traversal to reproduce byte-identical
// ciphertext for unchanged leaves.
type SavedMapNonces struct {
	entries map[nonceKey]crypto.Nonce
}

// NewSavedMapNonces constructs an empty saved-nonce table.
func NewSavedMapNonces() *SavedMapNonces {
	return &SavedMapNonces{entries: make(map[nonceKey]crypto.Nonce)}
}

// Put records the nonce used to encrypt a given (path, value) pair.
func (s *SavedMapNonces) Put(path crypto.KeyPath, key ValueKey, nonce crypto.Nonce) {
	s.entries[nonceKey{path: path, value: key}] = nonce
}

// Get looks up a previously saved nonce for a (path, value) pair.
func (s *SavedMapNonces) Get(path crypto.KeyPath, key ValueKey) (crypto.Nonce, bool) {
	n, ok := s.entries[nonceKey{path: path, value: key}]
	return n, ok
}

// Len reports the number of saved nonces.
func (s *SavedMapNonces) Len() int { return len(s.entries) }
