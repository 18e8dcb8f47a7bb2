package appsecurity

import (
	"time"
)

// Default values for CryptoPolicy if not overridden.
const (
	DefaultRotationInterval    = time.Hour * 24 * 90 // 90 days
	DefaultMaxKeys             = 5
	DefaultCreateDatePrecision = time.Minute
	DefaultReencryptPattern    = "*" + EncryptedFileSuffix
)

// CryptoPolicy contains options to customize key lifecycle behavior.
type CryptoPolicy struct {
	// RotationInterval is used to determine when the primary key is considered
	// expired based on its creation time (regularly-scheduled rotation).
	RotationInterval time.Duration
	// MaxKeys caps the size of the key ring. Rotation prepends a new primary
	// key and truncates the ring from the tail.
	MaxKeys int
	// CreateDatePrecision is used to truncate a new key's creation timestamp to avoid
	// excessive key creation when callers race on initialization.
	CreateDatePrecision time.Duration
	// ReencryptDirs lists directories whose encrypted files are re-encrypted
	// under the new primary key after a rotation.
	ReencryptDirs []string
	// ReencryptPattern matches the encrypted files within ReencryptDirs.
	ReencryptPattern string
}

// PolicyOption is used to configure a CryptoPolicy.
type PolicyOption func(*CryptoPolicy)

// WithRotationInterval sets the amount of time a primary key is considered valid.
func WithRotationInterval(d time.Duration) PolicyOption {
	return func(policy *CryptoPolicy) {
		policy.RotationInterval = d
	}
}

// WithMaxKeys sets the maximum number of keys retained in the ring.
func WithMaxKeys(n int) PolicyOption {
	return func(policy *CryptoPolicy) {
		policy.MaxKeys = n
	}
}

// WithReencryptDirs sets the directories to re-encrypt after a rotation.
func WithReencryptDirs(dirs ...string) PolicyOption {
	return func(policy *CryptoPolicy) {
		policy.ReencryptDirs = dirs
	}
}

// NewCryptoPolicy returns a new CryptoPolicy with default values.
func NewCryptoPolicy(opts ...PolicyOption) *CryptoPolicy {
	policy := &CryptoPolicy{
		RotationInterval:    DefaultRotationInterval,
		MaxKeys:             DefaultMaxKeys,
		CreateDatePrecision: DefaultCreateDatePrecision,
		ReencryptPattern:    DefaultReencryptPattern,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// isKeyExpired checks if the key's created timestamp is older than the
// allowed duration.
func isKeyExpired(created int64, expireAfter time.Duration) bool {
	return time.Now().After(time.Unix(created, 0).Add(expireAfter))
}

// newKeyTimestamp returns a unix timestamp in seconds truncated to the provided Duration.
func newKeyTimestamp(truncate time.Duration) int64 {
	if truncate > 0 {
		return time.Now().Truncate(truncate).Unix()
	}

	return time.Now().Unix()
}
