package auth_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/auth"
	"github.com/heremaps/olp-sdk-go/cancel"
)

type fakeProvider struct {
	calls int32
	token auth.Token
	err   error
}

func (f *fakeProvider) GetToken(ctx *cancel.Context) (auth.Token, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, f.err
}

func TestToken_Expired(t *testing.T) {
	now := time.Now()
	assert.True(t, auth.Token{}.Expired(now), "zero-value token is always expired")

	fresh := auth.Token{AccessToken: "x", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, fresh.Expired(now))

	nearExpiry := auth.Token{AccessToken: "x", ExpiresAt: now.Add(10 * time.Second)}
	assert.True(t, nearExpiry.Expired(now), "tokens within the safety margin count as expired")
}

func TestCachingProvider_ReusesValidToken(t *testing.T) {
	fake := &fakeProvider{token: auth.Token{AccessToken: "t1", ExpiresAt: time.Now().Add(time.Hour)}}
	c := auth.NewCachingProvider(fake)

	tok1, err := c.GetToken(nil)
	require.NoError(t, err)
	tok2, err := c.GetToken(nil)
	require.NoError(t, err)

	assert.Equal(t, "t1", tok1.AccessToken)
	assert.Equal(t, tok1, tok2)
	assert.EqualValues(t, 1, fake.calls, "a valid cached token must not trigger a refresh")
}

func TestStaticProvider_AlwaysReturnsSameToken(t *testing.T) {
	p := auth.NewStaticProvider("fixed-token")

	tok1, err := p.GetToken(nil)
	require.NoError(t, err)
	tok2, err := p.GetToken(nil)
	require.NoError(t, err)

	assert.Equal(t, "fixed-token", tok1.AccessToken)
	assert.Equal(t, tok1, tok2)
	assert.False(t, tok1.Expired(time.Now()))
}

func TestCachingProvider_RefreshesExpiredToken(t *testing.T) {
	fake := &fakeProvider{token: auth.Token{AccessToken: "t1", ExpiresAt: time.Now().Add(-time.Minute)}}
	c := auth.NewCachingProvider(fake)

	_, err := c.GetToken(nil)
	require.NoError(t, err)
	_, err = c.GetToken(nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, fake.calls, "an already-expired token must be refreshed on every call")
}
