package tree

import "errors"

// ErrDecryptValue is returned when a leaf fails to decrypt: wrong data
// key, tampered ciphertext, or a ciphertext moved to a different key
// path than the one it was sealed under.
var ErrDecryptValue = errors.New("tree: leaf decryption failed")
