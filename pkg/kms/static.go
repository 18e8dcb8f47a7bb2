// Package kms provides master-key services used to protect ring keys before
// they reach a key store.
package kms

import (
	"context"
	"time"

	"github.com/godaddy/asherah/go/securememory/memguard"
	"github.com/pkg/errors"

	"github.com/suhana-ai/appsecurity"
	"github.com/suhana-ai/appsecurity/internal"
)

var _ appsecurity.KeyManagementService = (*StaticKMS)(nil)

const staticKMSKeySize = 32

// StaticKMS protects ring keys under a caller-supplied in-memory master key.
// It serves tests and installations with no external key service; the master
// key itself is only as safe as wherever the caller got it from.
type StaticKMS struct {
	Crypto appsecurity.AEAD
	key    *internal.CryptoKey
}

// NewStatic constructs a new StaticKMS. The provided key MUST be
// 32 bytes in length.
func NewStatic(key string, crypto appsecurity.AEAD) (*StaticKMS, error) {
	if len(key) != staticKMSKeySize {
		return nil, errors.Errorf("invalid key size %d, must be 32 bytes", len(key))
	}

	f := new(memguard.SecretFactory)

	cryptoKey, err := internal.NewCryptoKey(f, time.Now().Unix(), []byte(key))
	if err != nil {
		return nil, err
	}

	return &StaticKMS{
		Crypto: crypto,
		key:    cryptoKey,
	}, nil
}

// EncryptKey takes in an unencrypted byte slice and encrypts it with the
// master key. The returned value is what should be persisted.
func (s *StaticKMS) EncryptKey(_ context.Context, bytes []byte) ([]byte, error) {
	dst, err := internal.WithKeyFunc(s.key, func(keyBytes []byte) ([]byte, error) {
		return s.Crypto.Encrypt(bytes, keyBytes)
	})
	if err != nil {
		return nil, err
	}

	return dst, nil
}

// DecryptKey decrypts the encrypted byte slice using the master key.
func (s *StaticKMS) DecryptKey(_ context.Context, encKey []byte) ([]byte, error) {
	keyBytes, err := internal.WithKeyFunc(s.key, func(kekBytes []byte) ([]byte, error) {
		return s.Crypto.Decrypt(encKey, kekBytes)
	})
	if err != nil {
		return nil, err
	}

	return keyBytes, nil
}

// Close frees the memory locked by the static key. It should be called
// as soon as it's no longer in use.
func (s *StaticKMS) Close() {
	if s.key != nil {
		s.key.Close()
	}
}
