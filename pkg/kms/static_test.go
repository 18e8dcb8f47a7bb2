package kms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhana-ai/appsecurity/pkg/crypto/aead"
)

const testMasterKey = "thisisastaticmasterkeyforsecrets"

func TestStaticKMS_RoundTrip(t *testing.T) {
	s, err := NewStatic(testMasterKey, aead.NewAES256GCM())
	require.NoError(t, err)

	defer s.Close()

	ctx := context.Background()
	keyBytes := []byte("a ring key to be wrapped")

	wrapped, err := s.EncryptKey(ctx, keyBytes)
	require.NoError(t, err)
	assert.NotEqual(t, keyBytes, wrapped)

	unwrapped, err := s.DecryptKey(ctx, wrapped)
	require.NoError(t, err)
	assert.Equal(t, keyBytes, unwrapped)
}

func TestNewStatic_InvalidKeySize(t *testing.T) {
	_, err := NewStatic("too short", aead.NewAES256GCM())
	assert.Error(t, err)
}

func TestStaticKMS_DecryptGarbage(t *testing.T) {
	s, err := NewStatic(testMasterKey, aead.NewAES256GCM())
	require.NoError(t, err)

	defer s.Close()

	_, err = s.DecryptKey(context.Background(), []byte("not a wrapped key"))
	assert.Error(t, err)
}
