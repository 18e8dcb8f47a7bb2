// Package persistence provides key store implementations for the
// appsecurity Manager.
package persistence

import (
	"context"

	"github.com/suhana-ai/appsecurity"
)

// LoaderFunc is an adapter to allow the use of ordinary functions as the load half of a KeyStore.
type LoaderFunc func(ctx context.Context) ([]appsecurity.StoredKey, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) ([]appsecurity.StoredKey, error) {
	return f(ctx)
}

// StorerFunc is an adapter to allow the use of ordinary functions as the store half of a KeyStore.
type StorerFunc func(ctx context.Context, keys []appsecurity.StoredKey) error

// Store calls f(ctx, keys).
func (f StorerFunc) Store(ctx context.Context, keys []appsecurity.StoredKey) error {
	return f(ctx, keys)
}

// KeyStoreFuncs combines a LoaderFunc and StorerFunc into an appsecurity.KeyStore.
type KeyStoreFuncs struct {
	LoaderFunc
	StorerFunc
}
