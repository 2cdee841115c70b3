package file

import "errors"

// ErrMissingKeys is returned by Build when no integration key-id was
// given: an encrypted file with no way to recover its data key would be
// unrecoverable by construction, so the builder refuses to produce one.
var ErrMissingKeys = errors.New("file: builder requires at least one integration key")

// ErrMapEncryption covers a cipher failure while encrypting the map.
var ErrMapEncryption = errors.New("file: map encryption failed")

// ErrMetadataEncryption covers a cipher failure while encrypting the
// metadata MAC.
var ErrMetadataEncryption = errors.New("file: metadata encryption failed")

// ErrUnknownIntegration is returned when a BuilderConfig key names an
// integration that is not registered.
var ErrUnknownIntegration = errors.New("file: unknown integration name")

// ErrIntegrationKeyNotFound is returned by RemoveIntegrationKeyAndRotate
// when the named integration/key-id has no recorded unit to remove:
// there is nothing to rotate away from.
var ErrIntegrationKeyNotFound = errors.New("file: no such integration key")
