package aead

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/suhana-ai/appsecurity"
)

// aesGCMCipherFactory returns a AEAD cipher using AES/GCM.
func aesGCMCipherFactory(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

// NewAES256GCM returns the logic required to encrypt data using AES/GCM.
func NewAES256GCM() appsecurity.AEAD {
	return cryptoFunc(aesGCMCipherFactory)
}

// AES256GCMCipher constructs a raw AES-256-GCM cipher.AEAD from key. It is
// used where the caller manages nonces and associated data itself, such as
// the streaming packet protocol.
func AES256GCMCipher(key []byte) (cipher.AEAD, error) {
	return aesGCMCipherFactory(key)
}
