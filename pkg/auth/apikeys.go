package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"econova/pkg/cache"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// APIKey is a static key from the tenants file. Only its bcrypt hash is kept.
type APIKey struct {
	Name     string   `yaml:"name"`
	Hash     string   `yaml:"hash"`
	Identity Identity `yaml:"identity"`
}

// APIKeyVerifier checks bearer tokens against bcrypt-hashed keys. bcrypt is
// slow on purpose, so verified tokens are remembered by their sha256 digest.
type APIKeyVerifier struct {
	keys     []APIKey
	verified *cache.Cache[Identity]
}

func NewAPIKeyVerifier(keys []APIKey, ttl time.Duration) *APIKeyVerifier {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &APIKeyVerifier{
		keys: append([]APIKey(nil), keys...),
		verified: cache.New[Identity](cache.Options{
			TTL:         ttl,
			NegativeTTL: 30 * time.Second,
			MaxEntries:  1024,
		}, cache.PrometheusHooks("api_keys")),
	}
}

func (v *APIKeyVerifier) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

// Verify resolves token to the identity of the matching key.
func (v *APIKeyVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if v == nil || len(v.keys) == 0 || token == "" {
		return Identity{}, ErrInvalidAPIKey
	}
	sum := sha256.Sum256([]byte(token))
	id, ok, err := v.verified.Get(ctx, hex.EncodeToString(sum[:]), func(context.Context, string) (Identity, bool, error) {
		for _, key := range v.keys {
			if CheckSecret(token, key.Hash) {
				return key.Identity, true, nil
			}
		}
		return Identity{}, false, ErrInvalidAPIKey
	})
	if err != nil || !ok {
		return Identity{}, ErrInvalidAPIKey
	}
	return id, nil
}
