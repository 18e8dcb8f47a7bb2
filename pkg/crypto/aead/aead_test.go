package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhana-ai/appsecurity/internal"
)

func TestAES256GCM_RoundTrip(t *testing.T) {
	crypto := NewAES256GCM()
	key := internal.GetRandBytes(32)

	data := []byte("some secret payload")

	ct, err := crypto.Encrypt(data, key)
	require.NoError(t, err)
	assert.NotEqual(t, data, ct)

	pt, err := crypto.Decrypt(ct, key)
	require.NoError(t, err)
	assert.Equal(t, data, pt)
}

func TestAES256GCM_UniqueCiphertexts(t *testing.T) {
	crypto := NewAES256GCM()
	key := internal.GetRandBytes(32)

	ct1, err := crypto.Encrypt([]byte("same input"), key)
	require.NoError(t, err)

	ct2, err := crypto.Encrypt([]byte("same input"), key)
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2, "nonces must be fresh for every encryption")
}

func TestAES256GCM_TamperFails(t *testing.T) {
	crypto := NewAES256GCM()
	key := internal.GetRandBytes(32)

	ct, err := crypto.Encrypt([]byte("integrity matters"), key)
	require.NoError(t, err)

	ct[0] ^= 0x01

	_, err = crypto.Decrypt(ct, key)
	assert.Error(t, err)
}

func TestAES256GCM_WrongKeyFails(t *testing.T) {
	crypto := NewAES256GCM()

	ct, err := crypto.Encrypt([]byte("payload"), internal.GetRandBytes(32))
	require.NoError(t, err)

	_, err = crypto.Decrypt(ct, internal.GetRandBytes(32))
	assert.Error(t, err)
}

func TestAES256GCM_ShortDataFails(t *testing.T) {
	crypto := NewAES256GCM()

	_, err := crypto.Decrypt([]byte("short"), internal.GetRandBytes(32))
	assert.Error(t, err)
}

func TestAES256GCM_InvalidKeySize(t *testing.T) {
	crypto := NewAES256GCM()

	_, err := crypto.Encrypt([]byte("data"), internal.GetRandBytes(15))
	assert.Error(t, err)
}
