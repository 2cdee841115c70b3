package crypto

// AuthorizationTag is the AEAD integrity tag produced by a Cipher. Its
// length is fixed by the cipher in use (16 bytes for AES-256-GCM). It is
// base64-encoded on the wire.
type AuthorizationTag []byte

// Clone returns an independent copy of the tag.
func (t AuthorizationTag) Clone() AuthorizationTag {
	c := make(AuthorizationTag, len(t))
	copy(c, t)
	return c
}
