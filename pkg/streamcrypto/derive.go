// Package streamcrypto implements the encrypted streaming protocol used to
// deliver live token output to the holder of a conversation's shared secret.
// Plaintext fragments are batched under adaptive thresholds and emitted as
// authenticated NDJSON packets bound to the conversation and a per-session
// sequence number.
package streamcrypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"io"
	"time"

	"github.com/goburrow/cache"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/suhana-ai/appsecurity/internal"
	"github.com/suhana-ai/appsecurity/pkg/crypto/aead"
)

const (
	// saltDomainTag namespaces the per-conversation salt so the same shared
	// secret derives unrelated keys for any other purpose.
	saltDomainTag = "chat-stream-v1:"
	// keyInfo is the fixed HKDF context string.
	keyInfo = "e2ee-stream/aes-gcm"

	// KeySize is the derived AEAD key size in bytes.
	KeySize = 32
	// NonceSize is the AEAD nonce size in bytes.
	NonceSize = 12
)

// conversationSalt computes the deterministic HKDF salt tying a derived key
// to exactly one conversation.
func conversationSalt(conversationID string) []byte {
	sum := sha256.Sum256([]byte(saltDomainTag + conversationID))
	return sum[:]
}

// DeriveKey derives the 256-bit per-conversation stream key from a
// long-lived shared secret. Derivation is deterministic: either side of a
// channel can derive the key independently without transmitting it.
func DeriveKey(sharedSecret []byte, conversationID string) ([]byte, error) {
	r := hkdf.New(sha256.New, sharedSecret, conversationSalt(conversationID), []byte(keyInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "error deriving stream key")
	}

	return key, nil
}

// NewCipher derives the per-conversation key and constructs an AES-256-GCM
// cipher from it. The intermediate key bytes are wiped before returning.
func NewCipher(sharedSecret []byte, conversationID string) (cipher.AEAD, error) {
	key, err := DeriveKey(sharedSecret, conversationID)
	if err != nil {
		return nil, err
	}

	defer internal.MemClr(key)

	return aead.AES256GCMCipher(key)
}

// Default bounds for the CipherProvider's cache.
const (
	DefaultCipherCacheMaxSize = 1000
	DefaultCipherCacheTTL     = 2 * time.Hour
)

// CipherProvider derives and caches per-conversation stream ciphers so
// repeated streams of the same conversation skip the KDF.
type CipherProvider struct {
	secret []byte
	cache  cache.LoadingCache
}

// NewCipherProvider returns a CipherProvider over sharedSecret. The secret
// is copied; the caller may wipe its own copy.
func NewCipherProvider(sharedSecret []byte) *CipherProvider {
	p := &CipherProvider{
		secret: append([]byte(nil), sharedSecret...),
	}

	p.cache = cache.NewLoadingCache(
		func(k cache.Key) (cache.Value, error) {
			return NewCipher(p.secret, k.(string))
		},
		cache.WithMaximumSize(DefaultCipherCacheMaxSize),
		cache.WithExpireAfterAccess(DefaultCipherCacheTTL),
	)

	return p
}

// Cipher returns the stream cipher for conversationID, deriving it on first
// use.
func (p *CipherProvider) Cipher(conversationID string) (cipher.AEAD, error) {
	v, err := p.cache.Get(conversationID)
	if err != nil {
		return nil, err
	}

	return v.(cipher.AEAD), nil
}

// Close wipes the shared secret and releases the cache.
func (p *CipherProvider) Close() error {
	internal.MemClr(p.secret)
	return p.cache.Close()
}
