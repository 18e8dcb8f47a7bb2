// Package appsecurity implements the cryptographic protection layer used to
// persist sensitive assistant data. Your main interaction with the library
// will most likely be the Manager, which should be created on application
// start up and owned by a single component for the lifetime of the app.
//
// The Manager encrypts all new data under the primary (newest) key of its
// ring and retains prior keys so that data written before a rotation remains
// readable until the ring's size cap evicts the issuing key.
package appsecurity

import "context"

// AEAD contains the functions required to encrypt
// and decrypt data using a specific cipher.
type AEAD interface {
	// Encrypt encrypts data using the provided key bytes.
	Encrypt(data, key []byte) ([]byte, error)
	// Decrypt decrypts data using the provided key bytes.
	Decrypt(data, key []byte) ([]byte, error)
}

// StoredKey is the serialized form of a single ring key as written to a key
// store: the raw key bytes in base64 and its creation time in ISO-8601.
type StoredKey struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
}

// KeyStore implements the required methods to persist and retrieve the
// ordered key ring. Implementations must write the full ring on every Store
// call; partial updates are not part of the contract.
type KeyStore interface {
	// Load retrieves the full key ring, newest first. A nil slice with no
	// error indicates an empty store.
	Load(ctx context.Context) ([]StoredKey, error)
	// Store persists the full key ring, newest first, replacing any
	// previously stored ring atomically.
	Store(ctx context.Context, keys []StoredKey) error
}

// SaltStore is implemented by key stores capable of persisting the random
// per-installation salt used for password-based key derivation. The salt is
// stored alongside, never instead of, the derived key material.
type SaltStore interface {
	// LoadSalt retrieves the stored salt. A nil slice with no error
	// indicates no salt has been stored yet.
	LoadSalt(ctx context.Context) ([]byte, error)
	// StoreSalt persists the salt.
	StoreSalt(ctx context.Context, salt []byte) error
}

// KeyManagementService contains the logic required to protect ring keys with
// a master key before they reach a key store.
type KeyManagementService interface {
	// EncryptKey takes in an unencrypted byte slice and encrypts it with the master key.
	EncryptKey(context.Context, []byte) ([]byte, error)
	// DecryptKey decrypts the encrypted byte slice using the master key.
	DecryptKey(context.Context, []byte) ([]byte, error)
}

// AES256KeySize is the size of the AES key used by the AEAD implementation.
const AES256KeySize int = 32

// MetricsPrefix prefixes all metrics names.
const MetricsPrefix = "appsec"

const (
	// EncryptedFileSuffix is appended to a file name on encryption and
	// stripped again on decryption.
	EncryptedFileSuffix = ".enc"
	// DecryptedFileSuffix is appended when decrypting a file that does not
	// carry the encrypted suffix.
	DecryptedFileSuffix = ".dec"
)
