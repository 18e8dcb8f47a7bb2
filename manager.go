package appsecurity

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godaddy/asherah/go/securememory"
	"github.com/godaddy/asherah/go/securememory/memguard"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/suhana-ai/appsecurity/internal"
	"github.com/suhana-ai/appsecurity/pkg/log"
)

// Manager metrics
var (
	encryptTimer    = metrics.GetOrRegisterTimer(fmt.Sprintf("%s.manager.encrypt", MetricsPrefix), nil)
	decryptTimer    = metrics.GetOrRegisterTimer(fmt.Sprintf("%s.manager.decrypt", MetricsPrefix), nil)
	rotationCounter = metrics.GetOrRegisterCounter(fmt.Sprintf("%s.manager.rotations", MetricsPrefix), nil)
)

const kdfSaltSize = 16

// Manager owns a key ring and a key store and performs all at-rest
// encryption for the application. All new encryptions use the ring's primary
// key; decryption tries every ring key, newest first, until one
// authenticates.
//
// A Manager performs synchronous file and key-store I/O and is not designed
// for concurrent mutation against the same key store. Callers needing
// concurrent rotations must serialize access externally.
type Manager struct {
	ring     *KeyRing
	store    KeyStore
	crypto   AEAD
	policy   *CryptoPolicy
	factory  securememory.SecretFactory
	kms      KeyManagementService
	password []byte
}

// ManagerOption is used to configure additional options in a Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the key lifecycle policy. Defaults to NewCryptoPolicy().
func WithPolicy(policy *CryptoPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithPassword derives the primary key deterministically from password using
// PBKDF2-SHA256 and a random per-installation salt persisted by the key
// store. The key store must implement SaltStore.
func WithPassword(password string) ManagerOption {
	return func(m *Manager) {
		m.password = []byte(password)
	}
}

// WithSecretFactory sets the factory to use for creating Secrets.
func WithSecretFactory(f securememory.SecretFactory) ManagerOption {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithKMS wraps ring keys with the provided key management service before
// they are persisted. Stores written with a KMS cannot be read without it.
func WithKMS(kms KeyManagementService) ManagerOption {
	return func(m *Manager) {
		m.kms = kms
	}
}

// NewManager creates a Manager backed by store, loading any persisted ring.
//
// If the store is empty a fresh random key is generated and persisted. A
// corrupt or unreadable store is logged and treated as empty rather than
// failing initialization. If the primary key's age exceeds the policy's
// rotation interval, rotation runs before the manager is returned.
func NewManager(ctx context.Context, store KeyStore, crypto AEAD, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:   store,
		crypto:  crypto,
		factory: new(memguard.SecretFactory),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.policy == nil {
		m.policy = NewCryptoPolicy()
	}

	if err := m.initRing(ctx); err != nil {
		return nil, err
	}

	if isKeyExpired(m.ring.Primary().Created(), m.policy.RotationInterval) {
		log.Debugf("primary key expired, rotating on initialization")

		// Availability over strictness: a failed automatic rotation leaves
		// the loaded ring usable.
		if err := m.RotateKeys(ctx, m.policy.MaxKeys); err != nil {
			log.Debugf("automatic rotation failed: %v", err)
		}
	}

	return m, nil
}

func (m *Manager) initRing(ctx context.Context) error {
	stored, err := m.store.Load(ctx)
	if err != nil {
		log.Debugf("error loading key store, falling back to a fresh key: %v", err)

		stored = nil
	}

	ring, err := deserializeKeyRing(m.factory, stored, m.unwrapFunc(ctx))
	if err != nil {
		log.Debugf("error reading stored keys, falling back to a fresh key: %v", err)

		ring = new(KeyRing)
	}

	m.ring = ring

	if m.password != nil {
		if err := m.derivePrimary(ctx); err != nil {
			m.ring.Close()
			return err
		}
	}

	if m.ring.Len() == 0 {
		key, err := internal.GenerateKey(m.factory, newKeyTimestamp(m.policy.CreateDatePrecision), AES256KeySize)
		if err != nil {
			return errors.WithMessagef(ErrKeyInitialization, "generating key: %v", err)
		}

		m.ring.prepend(key, m.policy.MaxKeys)

		if err := m.persistRing(ctx, m.ring); err != nil {
			m.ring.Close()
			return errors.WithMessagef(ErrKeyInitialization, "persisting generated key: %v", err)
		}

		log.Debugf("generated new primary key")
	}

	return nil
}

// derivePrimary derives a key from the configured password and installs it
// as the primary unless the current primary already matches, which keeps
// repeated initializations with the same password from growing the ring.
func (m *Manager) derivePrimary(ctx context.Context) error {
	salt, err := m.loadOrCreateSalt(ctx)
	if err != nil {
		return err
	}

	key, err := internal.DeriveKey(m.factory, newKeyTimestamp(m.policy.CreateDatePrecision), AES256KeySize, m.password, salt)
	if err != nil {
		return errors.WithMessagef(ErrKeyInitialization, "deriving key from password: %v", err)
	}

	if primary := m.ring.Primary(); primary != nil && keysEqual(primary, key) {
		key.Close()
		return nil
	}

	m.ring.prepend(key, m.policy.MaxKeys)

	if err := m.persistRing(ctx, m.ring); err != nil {
		return errors.WithMessagef(ErrKeyInitialization, "persisting derived key: %v", err)
	}

	log.Debugf("derived new primary key from password")

	return nil
}

func (m *Manager) loadOrCreateSalt(ctx context.Context) ([]byte, error) {
	saltStore, ok := m.store.(SaltStore)
	if !ok {
		return nil, errors.WithMessage(ErrKeyInitialization, "password derivation requires a salt-capable key store")
	}

	salt, err := saltStore.LoadSalt(ctx)
	if err != nil {
		return nil, errors.WithMessagef(ErrKeyInitialization, "loading KDF salt: %v", err)
	}

	if len(salt) > 0 {
		return salt, nil
	}

	salt = internal.GetRandBytes(kdfSaltSize)
	if err := saltStore.StoreSalt(ctx, salt); err != nil {
		return nil, errors.WithMessagef(ErrKeyInitialization, "storing KDF salt: %v", err)
	}

	return salt, nil
}

func keysEqual(a, b *internal.CryptoKey) bool {
	equal := false

	_ = internal.WithKey(a, func(aBytes []byte) error {
		return internal.WithKey(b, func(bBytes []byte) error {
			equal = subtle.ConstantTimeCompare(aBytes, bBytes) == 1
			return nil
		})
	})

	return equal
}

// Encrypt authenticated-encrypts data under the primary key and returns an
// opaque base64 token. No key identifier is embedded: decryption discovers
// the key by trial against the ring.
func (m *Manager) Encrypt(data []byte) ([]byte, error) {
	defer encryptTimer.UpdateSince(time.Now())

	primary := m.ring.Primary()
	if primary == nil {
		return nil, errors.WithMessage(ErrEncryption, "key ring is empty")
	}

	ct, err := internal.WithKeyFunc(primary, func(keyBytes []byte) ([]byte, error) {
		return m.crypto.Encrypt(data, keyBytes)
	})
	if err != nil {
		return nil, errors.WithMessagef(ErrEncryption, "%v", err)
	}

	token := make([]byte, base64.URLEncoding.EncodedLen(len(ct)))
	base64.URLEncoding.Encode(token, ct)

	return token, nil
}

// EncryptString encrypts a string value.
func (m *Manager) EncryptString(value string) ([]byte, error) {
	return m.Encrypt([]byte(value))
}

// EncryptRecord serializes record as JSON and encrypts the result.
func (m *Manager) EncryptRecord(record map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, errors.WithMessagef(ErrEncryption, "serializing record: %v", err)
	}

	return m.Encrypt(data)
}

// Decrypt recovers the plaintext bytes of token, trying every ring key
// newest first and succeeding on the first that authenticates.
func (m *Manager) Decrypt(token []byte) ([]byte, error) {
	defer decryptTimer.UpdateSince(time.Now())

	ct := make([]byte, base64.URLEncoding.DecodedLen(len(token)))

	n, err := base64.URLEncoding.Decode(ct, token)
	if err != nil {
		return nil, errors.WithMessage(ErrDecryption, "invalid token encoding")
	}

	ct = ct[:n]

	for _, key := range m.ring.Keys() {
		data, err := internal.WithKeyFunc(key, func(keyBytes []byte) ([]byte, error) {
			return m.crypto.Decrypt(ct, keyBytes)
		})
		if err == nil {
			return data, nil
		}
	}

	return nil, errors.WithMessagef(ErrDecryption, "tried %d keys", m.ring.Len())
}

// DecryptValue decrypts token and returns the structured record if the
// plaintext parses as JSON, else the plaintext as a string. A value that was
// encrypted as a string but happens to be valid JSON comes back structured;
// callers needing the exact bytes should use Decrypt.
func (m *Manager) DecryptValue(token []byte) (interface{}, error) {
	data, err := m.Decrypt(token)
	if err != nil {
		return nil, err
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err == nil {
		return v, nil
	}

	return string(data), nil
}

// EncryptFile encrypts the file at path and writes the token to a sibling
// file with the encrypted suffix appended. The original file is not removed;
// that is the caller's responsibility.
func (m *Manager) EncryptFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WithMessagef(ErrFileAccess, "reading %s: %v", path, err)
	}

	token, err := m.Encrypt(data)
	if err != nil {
		return "", err
	}

	encryptedPath := path + EncryptedFileSuffix
	if err := os.WriteFile(encryptedPath, token, 0o600); err != nil {
		return "", errors.WithMessagef(ErrFileAccess, "writing %s: %v", encryptedPath, err)
	}

	return encryptedPath, nil
}

// DecryptFile decrypts the file at encryptedPath. The output path strips the
// encrypted suffix when present, else appends the decrypted suffix.
func (m *Manager) DecryptFile(encryptedPath string) (string, error) {
	token, err := os.ReadFile(encryptedPath)
	if err != nil {
		return "", errors.WithMessagef(ErrFileAccess, "reading %s: %v", encryptedPath, err)
	}

	data, err := m.Decrypt(token)
	if err != nil {
		return "", err
	}

	decryptedPath := encryptedPath + DecryptedFileSuffix
	if strings.HasSuffix(encryptedPath, EncryptedFileSuffix) {
		decryptedPath = strings.TrimSuffix(encryptedPath, EncryptedFileSuffix)
	}

	if err := os.WriteFile(decryptedPath, data, 0o600); err != nil {
		return "", errors.WithMessagef(ErrFileAccess, "writing %s: %v", decryptedPath, err)
	}

	return decryptedPath, nil
}

// ReencryptFile decrypts the encrypted file at path with any ring key and
// re-encrypts it under the current primary, replacing the original via a
// temp-file rename so a crash cannot destroy both ciphertexts. Failures are
// logged and reported as false, never propagated, so bulk callers are not
// aborted by one bad file.
func (m *Manager) ReencryptFile(path string) bool {
	token, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("reencrypt: error reading %s: %v", path, err)
		return false
	}

	data, err := m.Decrypt(token)
	if err != nil {
		log.Debugf("reencrypt: error decrypting %s: %v", path, err)
		return false
	}

	fresh, err := m.Encrypt(data)
	if err != nil {
		log.Debugf("reencrypt: error encrypting %s: %v", path, err)
		return false
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		log.Debugf("reencrypt: error creating temp file for %s: %v", path, err)
		return false
	}

	_, werr := tmp.Write(fresh)

	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}

	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}

	if werr != nil {
		log.Debugf("reencrypt: error replacing %s: %v", path, werr)
		_ = os.Remove(tmp.Name())

		return false
	}

	return true
}

// ReencryptDirectory re-encrypts every file in dir matching pattern with the
// current primary key and returns the success and total counts. An empty or
// missing directory yields (0, 0). Files are processed strictly
// sequentially; each file's outcome is independent.
func (m *Manager) ReencryptDirectory(dir, pattern string) (successCount, totalCount int) {
	if pattern == "" {
		pattern = m.policy.ReencryptPattern
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, 0
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		log.Debugf("reencrypt: bad pattern %q: %v", pattern, err)
		return 0, 0
	}

	for _, path := range matches {
		if m.ReencryptFile(path) {
			successCount++
		}
	}

	log.Debugf("re-encrypted %d/%d files in %s", successCount, len(matches), dir)

	return successCount, len(matches)
}

// RotateKeys generates a new primary key, prepends it to the ring, truncates
// the ring to maxKeys (the policy's cap if maxKeys is zero), and persists
// the result. Rotation is all-or-nothing: if generation or persistence
// fails, the ring is left unmodified and the error propagates.
//
// After a successful rotation, any directories configured on the policy are
// re-encrypted under the new primary key.
func (m *Manager) RotateKeys(ctx context.Context, maxKeys int) error {
	if maxKeys <= 0 {
		maxKeys = m.policy.MaxKeys
	}

	key, err := internal.GenerateKey(m.factory, newKeyTimestamp(m.policy.CreateDatePrecision), AES256KeySize)
	if err != nil {
		return errors.Wrap(err, "error generating rotation key")
	}

	// Serialize the candidate ring before touching the live one.
	next := &KeyRing{keys: append([]*internal.CryptoKey{key}, m.ring.Keys()...)}
	if maxKeys > 0 && len(next.keys) > maxKeys {
		next.keys = next.keys[:maxKeys]
	}

	stored, err := next.serialize(m.wrapFunc(ctx))
	if err != nil {
		key.Close()
		return errors.Wrap(err, "error serializing rotated ring")
	}

	if err := m.store.Store(ctx, stored); err != nil {
		key.Close()
		return errors.Wrap(err, "error persisting rotated ring")
	}

	m.ring.prepend(key, maxKeys)
	rotationCounter.Inc(1)

	log.Debugf("rotated keys, ring now holds %d keys", m.ring.Len())

	for _, dir := range m.policy.ReencryptDirs {
		success, total := m.ReencryptDirectory(dir, m.policy.ReencryptPattern)
		log.Debugf("reencryption after rotation: %d/%d files in %s", success, total, dir)
	}

	return nil
}

// Ring exposes the manager's key ring for inspection.
func (m *Manager) Ring() *KeyRing {
	return m.ring
}

func (m *Manager) persistRing(ctx context.Context, ring *KeyRing) error {
	stored, err := ring.serialize(m.wrapFunc(ctx))
	if err != nil {
		return err
	}

	return m.store.Store(ctx, stored)
}

func (m *Manager) wrapFunc(ctx context.Context) func([]byte) ([]byte, error) {
	if m.kms == nil {
		return nil
	}

	return func(b []byte) ([]byte, error) {
		return m.kms.EncryptKey(ctx, b)
	}
}

func (m *Manager) unwrapFunc(ctx context.Context) func([]byte) ([]byte, error) {
	if m.kms == nil {
		return nil
	}

	return func(b []byte) ([]byte, error) {
		return m.kms.DecryptKey(ctx, b)
	}
}

// Close destroys all keys held by the manager. It should be called when the
// manager is no longer required.
func (m *Manager) Close() error {
	m.ring.Close()
	return nil
}
