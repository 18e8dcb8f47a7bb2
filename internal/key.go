package internal

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/godaddy/asherah/go/securememory"
	"golang.org/x/crypto/pbkdf2"
)

// Pbkdf2Iterations is the iteration count used for password-based key
// derivation. Chosen to keep derivation comfortably above the 100k floor
// recommended for PBKDF2-SHA256.
const Pbkdf2Iterations = 100_000

// CryptoKey represents an unencrypted key stored in a secure section in memory.
type CryptoKey struct {
	created int64
	secret  securememory.Secret
	once    sync.Once
}

// Created returns the time the CryptoKey was created as a Unix epoch in seconds.
func (k *CryptoKey) Created() int64 {
	return k.created
}

// Close destroys the underlying buffer for this key.
func (k *CryptoKey) Close() {
	k.once.Do(k.close)
}

func (k *CryptoKey) close() {
	if k.secret == nil {
		return
	}

	k.secret.Close()
}

// IsClosed returns true if the underlying buffer has been closed.
func (k *CryptoKey) IsClosed() bool {
	return k.secret.IsClosed()
}

func (k *CryptoKey) String() string {
	return fmt.Sprintf("CryptoKey(%p){secret(%p)}", k, k.secret)
}

// WithBytes implements BytesAccessor.
func (k *CryptoKey) WithBytes(action func([]byte) error) error {
	return k.secret.WithBytes(action)
}

// WithBytesFunc implements BytesFuncAccessor.
func (k *CryptoKey) WithBytesFunc(action func([]byte) ([]byte, error)) ([]byte, error) {
	return k.secret.WithBytesFunc(action)
}

// NewCryptoKey creates a CryptoKey using the given key. Note that the underlying array will be wiped after
// the function exits.
func NewCryptoKey(factory securememory.SecretFactory, created int64, key []byte) (*CryptoKey, error) {
	sec, err := factory.New(key)
	if err != nil {
		return nil, err
	}

	return &CryptoKey{
		created: created,
		secret:  sec,
	}, nil
}

// GenerateKey creates a new random CryptoKey.
func GenerateKey(factory securememory.SecretFactory, created int64, size int) (*CryptoKey, error) {
	sec, err := factory.CreateRandom(size)
	if err != nil {
		return nil, err
	}

	return &CryptoKey{
		created: created,
		secret:  sec,
	}, nil
}

// DeriveKey derives a CryptoKey of the given size from a password and salt
// using PBKDF2-SHA256. Derivation is deterministic: the same password and
// salt always produce the same key bytes.
func DeriveKey(factory securememory.SecretFactory, created int64, size int, password, salt []byte) (*CryptoKey, error) {
	derived := pbkdf2.Key(password, salt, Pbkdf2Iterations, size, sha256.New)

	// NewCryptoKey wipes the derived bytes once they are secured.
	return NewCryptoKey(factory, created, derived)
}

type BytesAccessor interface {
	WithBytes(action func([]byte) error) error
}

// WithKey takes in BytesAccessor, e.g., a CryptoKey, makes the underlying bytes readable, and passes them to the
// function provided. A reference MUST not be stored to the provided bytes. The underlying array will be wiped after
// the function exits.
func WithKey(key BytesAccessor, action func([]byte) error) error {
	return key.WithBytes(action)
}

type BytesFuncAccessor interface {
	WithBytesFunc(action func([]byte) ([]byte, error)) ([]byte, error)
}

// WithKeyFunc takes in a BytesFuncAccessor, e.g., a CryptoKey, makes the underlying bytes readable, and passes them to
// the function provided. A reference MUST not be stored to the provided bytes. The underlying array will be wiped after
// the function exits.
func WithKeyFunc(key BytesFuncAccessor, action func([]byte) ([]byte, error)) ([]byte, error) {
	return key.WithBytesFunc(action)
}
