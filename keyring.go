package appsecurity

import (
	"encoding/base64"
	"time"

	"github.com/godaddy/asherah/go/securememory"
	"github.com/pkg/errors"

	"github.com/suhana-ai/appsecurity/internal"
)

// KeyRing holds the ordered key history for a Manager. The key at position
// zero is the primary key and is used for all new encryptions; every key in
// the ring is a candidate for decryption, tried newest first.
//
// A KeyRing is not safe for concurrent mutation. The owning Manager
// serializes access.
type KeyRing struct {
	keys []*internal.CryptoKey
}

// Primary returns the primary (newest) key, or nil if the ring is empty.
func (r *KeyRing) Primary() *internal.CryptoKey {
	if len(r.keys) == 0 {
		return nil
	}

	return r.keys[0]
}

// Len returns the number of keys in the ring.
func (r *KeyRing) Len() int {
	return len(r.keys)
}

// Keys returns the ring's keys, newest first. The returned slice is a copy;
// the keys themselves are shared.
func (r *KeyRing) Keys() []*internal.CryptoKey {
	out := make([]*internal.CryptoKey, len(r.keys))
	copy(out, r.keys)

	return out
}

// prepend inserts key as the new primary and truncates the ring to max
// entries, closing any evicted keys. A max of zero leaves the ring uncapped.
func (r *KeyRing) prepend(key *internal.CryptoKey, max int) {
	keys := make([]*internal.CryptoKey, 0, len(r.keys)+1)
	keys = append(keys, key)
	keys = append(keys, r.keys...)

	if max > 0 && len(keys) > max {
		for _, evicted := range keys[max:] {
			evicted.Close()
		}

		keys = keys[:max]
	}

	r.keys = keys
}

// Close destroys all keys held by the ring.
func (r *KeyRing) Close() {
	for _, k := range r.keys {
		k.Close()
	}

	r.keys = nil
}

// serialize converts the ring to its stored form, newest first, optionally
// wrapping each key's bytes with kms.
func (r *KeyRing) serialize(wrap func([]byte) ([]byte, error)) ([]StoredKey, error) {
	stored := make([]StoredKey, 0, len(r.keys))

	for _, k := range r.keys {
		raw, err := internal.WithKeyFunc(k, func(keyBytes []byte) ([]byte, error) {
			if wrap == nil {
				out := make([]byte, len(keyBytes))
				copy(out, keyBytes)

				return out, nil
			}

			return wrap(keyBytes)
		})
		if err != nil {
			return nil, errors.Wrap(err, "error serializing ring key")
		}

		stored = append(stored, StoredKey{
			Key:       base64.StdEncoding.EncodeToString(raw),
			Timestamp: time.Unix(k.Created(), 0).UTC().Format(time.RFC3339),
		})

		internal.MemClr(raw)
	}

	return stored, nil
}

// deserializeKeyRing reconstructs a ring from its stored form, optionally
// unwrapping each key's bytes with unwrap.
func deserializeKeyRing(factory securememory.SecretFactory, stored []StoredKey, unwrap func([]byte) ([]byte, error)) (*KeyRing, error) {
	ring := new(KeyRing)
	ring.keys = make([]*internal.CryptoKey, 0, len(stored))

	for _, sk := range stored {
		raw, err := base64.StdEncoding.DecodeString(sk.Key)
		if err != nil {
			ring.Close()
			return nil, errors.Wrap(err, "error decoding stored key")
		}

		if unwrap != nil {
			if raw, err = unwrap(raw); err != nil {
				ring.Close()
				return nil, errors.Wrap(err, "error unwrapping stored key")
			}
		}

		created, err := time.Parse(time.RFC3339, sk.Timestamp)
		if err != nil {
			ring.Close()
			return nil, errors.Wrap(err, "error parsing stored key timestamp")
		}

		key, err := internal.NewCryptoKey(factory, created.Unix(), raw)
		if err != nil {
			ring.Close()
			return nil, err
		}

		ring.keys = append(ring.keys, key)
	}

	return ring, nil
}
