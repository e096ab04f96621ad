package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

const (
	TestIssuer   = "tenant-iam-test"
	TestAudience = "tenant-iam-test"
)

// NewTestTokenProvider returns a TokenProvider over a freshly generated P-256 key with a
// 15 minute access TTL and 24 hour refresh TTL. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, &key.PublicKey, TestIssuer, TestAudience, 15*time.Minute, 24*time.Hour), nil
}
