package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultCredentialTTL = 10 * time.Minute
	refreshSkew          = 30 * time.Second
)

// FetchFunc obtains a fresh access token. expiresIn may be zero when the
// provider does not report a lifetime.
type FetchFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// CredentialCache holds one provider access token and refreshes it shortly
// before it expires. Concurrent callers share a single refresh.
type CredentialCache struct {
	fetch FetchFunc
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCredentialCache creates an empty cache backed by fetch
func NewCredentialCache(fetch FetchFunc) *CredentialCache {
	return &CredentialCache{fetch: fetch, now: time.Now}
}

// Get returns the cached token, fetching a new one when absent or about to expire
func (c *CredentialCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Add(refreshSkew).Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiresIn, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch credential: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("credential provider returned an empty token")
	}

	c.token = token
	c.expiresAt = expiryOf(token, expiresIn, now)
	return token, nil
}

// Invalidate drops the cached token, e.g. after the provider rejected it
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// ExpiresAt returns the expiry of the cached token, zero when empty
func (c *CredentialCache) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// expiryOf prefers the reported lifetime, then the JWT exp claim, then a default
func expiryOf(token string, expiresIn time.Duration, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(expiresIn)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}

	return now.Add(defaultCredentialTTL)
}
