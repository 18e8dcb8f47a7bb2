package appsecurity

import "github.com/pkg/errors"

// Error kinds surfaced by this package. Callers match them with errors.Is;
// additional context is attached via wrapping.
var (
	// ErrKeyInitialization indicates no key could be generated, derived, or
	// loaded. The manager is unusable.
	ErrKeyInitialization = errors.New("no usable encryption key")

	// ErrEncryption indicates the primary key was missing or invalid at
	// encrypt time.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption indicates no key in the ring authenticates the token.
	// Retrying with the same key set cannot succeed.
	ErrDecryption = errors.New("decryption failed for all keys")

	// ErrFileAccess indicates the target of a file-level operation could not
	// be read.
	ErrFileAccess = errors.New("file access failed")
)
