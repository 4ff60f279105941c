// Package gotrueauth is the SDK's default auth.TokenProvider: it exchanges
// client credentials for a bearer token against a GoTrue-compatible token
// endpoint. GoTrue's client-credentials/password grant flow is
// structurally the same shape as OLP's own OAuth2 client-credentials token
// endpoint, so the teacher's gotrue-go dependency is repurposed here
// rather than hand-rolling an OAuth2 client from scratch.
package gotrueauth

import (
	"time"

	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/heremaps/olp-sdk-go/auth"
	"github.com/heremaps/olp-sdk-go/cancel"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// Adapter implements auth.TokenProvider against a GoTrue-compatible token
// endpoint using the client-credentials grant.
type Adapter struct {
	client       types.GoTrueClient
	clientID     string
	clientSecret string
}

// NewAdapter builds an Adapter for tokenEndpointURL. clientID/clientSecret
// are exchanged for a bearer token via the client-credentials grant every
// time GetToken is called; wrap the result in auth.NewCachingProvider to
// avoid refreshing on every request.
func NewAdapter(tokenEndpointURL, clientID, clientSecret string) *Adapter {
	client := gotrue.New("", "").WithCustomGoTrueURL(tokenEndpointURL)
	return &Adapter{client: client, clientID: clientID, clientSecret: clientSecret}
}

// GetToken exchanges the configured client credentials for a bearer token.
// ctx's cancellation is not threaded into the underlying gotrue-go client
// (it has no context-aware API); a cancelled ctx is checked before issuing
// the exchange so callers still get a fast Cancelled error when possible.
func (a *Adapter) GetToken(ctx *cancel.Context) (auth.Token, error) {
	if ctx != nil && ctx.IsCancelled() {
		return auth.Token{}, olperrors.NewCancelled("gotrueauth: token request cancelled")
	}

	resp, err := a.client.Token(types.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
	})
	if err != nil {
		return auth.Token{}, olperrors.NewAccessDenied("gotrueauth: token exchange failed: " + err.Error())
	}

	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	return auth.Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(expiresIn),
	}, nil
}
