// Package auth defines the token-acquisition seam this SDK consumes
// (spec §1 "out of scope: Authentication token acquisition ... specified
// only by the interface the core consumes") plus a caching decorator any
// TokenProvider implementation can be wrapped in.
package auth

import (
	"sync"
	"time"

	"github.com/heremaps/olp-sdk-go/cancel"
)

// Token is a bearer credential with its expiry, so callers (and the
// caching decorator below) know when to refresh.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether t should be refreshed, with a small safety
// margin so a request in flight doesn't race the token's real expiry.
func (t Token) Expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	return !now.Before(t.ExpiresAt.Add(-30 * time.Second))
}

// TokenProvider acquires bearer tokens for authenticated requests. The
// default adapter is gotrueauth.Adapter; callers may supply any other
// implementation (OAuth2 client-credentials, a static token, a federated
// sign-in flow) since this is a pluggable interface, not the flow itself.
type TokenProvider interface {
	GetToken(ctx *cancel.Context) (Token, error)
}

// StaticProvider always returns the same pre-issued token, for
// deployments that mint their own long-lived credential out of band
// instead of exchanging client credentials per session.
type StaticProvider struct {
	token Token
}

// NewStaticProvider wraps accessToken in a TokenProvider that never
// expires.
func NewStaticProvider(accessToken string) *StaticProvider {
	return &StaticProvider{token: Token{AccessToken: accessToken, ExpiresAt: time.Now().AddDate(100, 0, 0)}}
}

// GetToken returns the configured token; ctx's cancellation is ignored
// since no network call is involved.
func (p *StaticProvider) GetToken(ctx *cancel.Context) (Token, error) {
	return p.token, nil
}

// CachingProvider wraps an inner TokenProvider and only calls it again
// once the cached token is close to expiring, so every request doesn't
// pay for a fresh token exchange.
type CachingProvider struct {
	inner TokenProvider

	mu      sync.Mutex
	current Token
}

// NewCachingProvider wraps inner with an expiry-aware cache.
func NewCachingProvider(inner TokenProvider) *CachingProvider {
	return &CachingProvider{inner: inner}
}

// GetToken returns the cached token if still valid, otherwise refreshes
// via the wrapped provider. Concurrent callers during a refresh block on
// the same in-flight exchange rather than triggering duplicate ones.
func (c *CachingProvider) GetToken(ctx *cancel.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current.Expired(time.Now()) {
		return c.current, nil
	}

	token, err := c.inner.GetToken(ctx)
	if err != nil {
		return Token{}, err
	}
	c.current = token
	return token, nil
}
