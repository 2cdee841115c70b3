package metadata

import "errors"

// ErrMetadata covers data-key retrieval and MAC-decryption failure.
var ErrMetadata = errors.New("metadata: operation failed")

// ErrMissingDataKey means no integration unit yielded a data key: the
// caller lacks credentials for any of the recorded integrations.
var ErrMissingDataKey = errors.New("metadata: no integration yielded a data key")

// MacMismatchError reports that a recomputed MAC does not match the
// one stored (and successfully decrypted) in the file's metadata.
type MacMismatchError struct {
	Computed string
	Stored   string
}

func (e *MacMismatchError) Error() string {
	return "metadata: MAC mismatch: computed " + e.Computed + " but stored value was " + e.Stored
}
