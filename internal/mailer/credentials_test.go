package mailer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCache_ReusesUntilNearExpiry(t *testing.T) {
	now := time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)
	var calls int
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "token-" + string(rune('0'+calls)), time.Minute, nil
	})
	cache.now = func() time.Time { return now }

	tok, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	now = now.Add(29 * time.Second)
	tok, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	// Within the refresh skew of expiry
	now = now.Add(2 * time.Second)
	tok, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, 2, calls)
}

func TestCredentialCache_ExpiryFromJWT(t *testing.T) {
	now := time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)
	exp := now.Add(2 * time.Hour)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		return signed, 0, nil
	})
	cache.now = func() time.Time { return now }

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, cache.ExpiresAt().Equal(exp), "expires at %v, want %v", cache.ExpiresAt(), exp)
}

func TestCredentialCache_DefaultTTLForOpaqueTokens(t *testing.T) {
	now := time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		return "opaque", 0, nil
	})
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(defaultCredentialTTL), cache.ExpiresAt())
}

func TestCredentialCache_InvalidateAndErrors(t *testing.T) {
	var calls int
	fail := false
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		calls++
		if fail {
			return "", 0, errors.New("provider down")
		}
		return "tok", time.Hour, nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.Invalidate()
	assert.True(t, cache.ExpiresAt().IsZero())

	fail = true
	_, err = cache.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestCredentialCache_ConcurrentCallersShareFetch(t *testing.T) {
	var calls atomic.Int32
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "shared", time.Hour, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "shared", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
