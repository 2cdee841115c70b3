package crypto

import "encoding/base64"

// EncodeBase64 encodes b using the standard alphabet with padding, as the
// ENC[...] wire format requires for its data:/iv:/tag: fields.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes s using the standard alphabet, accepting input with
// padding stripped (the decoder is tried first with padding, then without).
func DecodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
