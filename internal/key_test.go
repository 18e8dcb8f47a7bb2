package internal

import (
	"testing"
	"time"

	"github.com/godaddy/asherah/go/securememory/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var factory = new(memguard.SecretFactory)

func TestGenerateKey(t *testing.T) {
	created := time.Now().Unix()

	key, err := GenerateKey(factory, created, 32)
	require.NoError(t, err)

	defer key.Close()

	assert.Equal(t, created, key.Created())

	err = key.WithBytes(func(b []byte) error {
		assert.Len(t, b, 32)
		return nil
	})
	assert.NoError(t, err)
}

func TestNewCryptoKey_WipesSource(t *testing.T) {
	src := []byte("0123456789abcdef0123456789abcdef")

	key, err := NewCryptoKey(factory, time.Now().Unix(), src)
	require.NoError(t, err)

	defer key.Close()

	assert.Equal(t, make([]byte, len(src)), src)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	created := time.Now().Unix()
	salt := []byte("fixed salt value")

	k1, err := DeriveKey(factory, created, 32, []byte("passphrase"), salt)
	require.NoError(t, err)

	defer k1.Close()

	k2, err := DeriveKey(factory, created, 32, []byte("passphrase"), salt)
	require.NoError(t, err)

	defer k2.Close()

	var b1, b2 []byte

	require.NoError(t, k1.WithBytes(func(b []byte) error {
		b1 = append([]byte(nil), b...)
		return nil
	}))
	require.NoError(t, k2.WithBytes(func(b []byte) error {
		b2 = append([]byte(nil), b...)
		return nil
	}))

	assert.Equal(t, b1, b2)

	MemClr(b1)
	MemClr(b2)
}

func TestDeriveKey_SaltChangesOutput(t *testing.T) {
	created := time.Now().Unix()

	k1, err := DeriveKey(factory, created, 32, []byte("passphrase"), []byte("salt one"))
	require.NoError(t, err)

	defer k1.Close()

	k2, err := DeriveKey(factory, created, 32, []byte("passphrase"), []byte("salt two"))
	require.NoError(t, err)

	defer k2.Close()

	var b1, b2 []byte

	require.NoError(t, k1.WithBytes(func(b []byte) error {
		b1 = append([]byte(nil), b...)
		return nil
	}))
	require.NoError(t, k2.WithBytes(func(b []byte) error {
		b2 = append([]byte(nil), b...)
		return nil
	}))

	assert.NotEqual(t, b1, b2)

	MemClr(b1)
	MemClr(b2)
}

func TestCryptoKey_CloseIsIdempotent(t *testing.T) {
	key, err := GenerateKey(factory, time.Now().Unix(), 32)
	require.NoError(t, err)

	key.Close()
	key.Close()

	assert.True(t, key.IsClosed())
}

func TestWithKeyFunc(t *testing.T) {
	key, err := GenerateKey(factory, time.Now().Unix(), 32)
	require.NoError(t, err)

	defer key.Close()

	out, err := WithKeyFunc(key, func(b []byte) ([]byte, error) {
		return []byte{b[0]}, nil
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
