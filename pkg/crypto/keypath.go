package crypto

import "strings"

// KeyPath is the colon-terminated concatenation of map keys from the
// document root to a leaf. It is fed to the Cipher as associated data for
// every leaf encryption, binding each ciphertext to its position in the
// document: moving a ciphertext to a different path must fail to decrypt.
// Sequence indices do not extend the path.
type KeyPath string

// RootKeyPath is the empty path, the starting point of every traversal.
const RootKeyPath KeyPath = ""

// Child appends a map key to the path.
func (p KeyPath) Child(key string) KeyPath {
	return KeyPath(string(p) + key + ":")
}

// Bytes returns the path's associated-data byte form.
func (p KeyPath) Bytes() []byte {
	return []byte(p)
}

// String implements fmt.Stringer.
func (p KeyPath) String() string {
	return string(p)
}

// Depth reports how many keys the path carries.
func (p KeyPath) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), ":")
}
