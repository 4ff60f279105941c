// Package transport implements the SDK's one pluggable network boundary
// (spec §1 "out of scope: HTTP transport, TLS, proxy handling,
// per-platform network backends" — specified only by the interface the
// core consumes). Client wraps a net/http.RoundTripper with the retry,
// circuit-breaking, and timeout behavior every repository in this module
// needs, so no repository talks to net/http directly.
package transport

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/aws/smithy-go/retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/auth"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/config"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// RoundTripper is the seam a caller can plug a custom per-platform network
// backend into; *http.Transport (the default) satisfies it, as does any
// test double.
type RoundTripper = http.RoundTripper

// Client issues HTTP requests with retry-with-backoff, a circuit breaker
// per host, and cancellation wired from cancel.Context into the request.
type Client struct {
	http       *http.Client
	retry      config.RetrySettings
	backoff    retry.BackoffDelayer
	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[*http.Response]
	logger     *zap.Logger
	auth       auth.TokenProvider
}

// SetAuth attaches provider so every subsequent Do call carries a bearer
// token. A nil provider (the default) leaves requests unauthenticated,
// matching spec §1's "token acquisition is out of scope" — callers opt in
// by supplying a provider through config.Settings.Authentication.
func (c *Client) SetAuth(provider auth.TokenProvider) {
	c.auth = provider
}

// NewClient builds a Client from the network/proxy/retry settings. rt, if
// non-nil, replaces the default *http.Transport (e.g. in tests, or to
// plug in a platform-specific backend); proxy settings are ignored when rt
// is supplied, since the caller owns the transport's dialing entirely.
func NewClient(network config.NetworkSettings, proxy config.ProxySettings, retrySettings config.RetrySettings, rt RoundTripper, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if rt == nil {
		transport := &http.Transport{
			MaxIdleConns:    network.MaxIdleConns,
			DialContext:     (&net.Dialer{Timeout: network.ConnectTimeout}).DialContext,
			IdleConnTimeout: 90 * time.Second,
		}
		if proxy.Enabled() {
			proxyURL, err := buildProxyURL(proxy)
			if err != nil {
				return nil, olperrors.Wrap(err, "transport: invalid proxy settings")
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		rt = transport
	}

	return &Client{
		http:     &http.Client{Transport: rt, Timeout: network.RequestTimeout},
		retry:    retrySettings,
		backoff:  retry.NewExponentialJitterBackoff(retrySettings.Timeout()),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
		logger:   logger,
	}, nil
}

func buildProxyURL(p config.ProxySettings) (*url.URL, error) {
	scheme := p.Type
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{Scheme: scheme, Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u, nil
}

// Do issues req, retrying retryable failures (HTTP 429/5xx, per SPEC_FULL
// retry classification) up to Settings.Retry.MaxAttempts times with
// exponential jittered backoff, through a per-host circuit breaker. ctx's
// cancellation aborts the in-flight attempt and any further retries.
func (c *Client) Do(ctx *cancel.Context, req *http.Request) (*http.Response, error) {
	stdCtx, cancelFn := cancel.NewStdContext(ctx)
	defer cancelFn()

	breaker := c.breakerFor(req.URL.Host)
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, olperrors.NewUnknown("transport: reading request body", err)
		}
		req.Body.Close()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx != nil && ctx.IsCancelled() {
			return nil, olperrors.NewCancelled("transport: request cancelled")
		}

		if attempt > 0 {
			delay, _ := c.backoff.BackoffDelay(attempt, lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-stdCtx.Done():
				timer.Stop()
				return nil, olperrors.NewCancelled("transport: request cancelled during backoff")
			}
		}

		attemptReq := req.Clone(stdCtx)
		if bodyBytes != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		if c.auth != nil {
			token, err := c.auth.GetToken(ctx)
			if err != nil {
				return nil, err
			}
			attemptReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
		}

		resp, err := breaker.Execute(func() (*http.Response, error) {
			return c.http.Do(attemptReq)
		})

		if err != nil {
			lastErr = err
			if !c.isErrorRetryable(err) {
				return nil, classifyTransportErr(err)
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts-1 {
			resp.Body.Close()
			lastErr = olperrors.Newf(olperrors.ServiceUnavailable, "transport: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, classifyTransportErr(lastErr)
	}
	return nil, olperrors.NewUnknown("transport: exhausted retries", nil)
}

// breakerFor returns host's circuit breaker, creating it on first use.
// Do calls this from every task-sink worker concurrently (spec §5 "public
// methods may be invoked from any thread"), so the lazy-create map needs
// its own lock rather than relying on the caller to serialize access.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", zap.String("host", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	c.breakers[host] = b
	return b
}

func (c *Client) isErrorRetryable(err error) bool {
	return !olperrors.IsCancelled(err)
}

func isRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// classifyTransportErr maps a transport-level failure onto the SDK's error
// taxonomy (spec §7); HTTP-status classification happens in the callers
// that parse a successful response's status code.
func classifyTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if sdkErr, ok := err.(*olperrors.SDKError); ok {
		return sdkErr
	}
	return olperrors.NewUnknown("transport: request failed", err)
}
