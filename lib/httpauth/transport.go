// Package httpauth attaches a bearer token to every outbound request the
// gateway makes to the upstream FHIR server, for deployments where that
// server sits behind OAuth2 client-credentials auth rather than (or on
// top of) mTLS (see lib/tlsconfig).
package httpauth

import (
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TokenFunc returns the bearer token to attach to the next upstream
// request. Called once per round trip, so a TokenFunc backed by a
// TokenProvider gives transparent refresh without the caller noticing.
// An empty string skips the Authorization header.
type TokenFunc func() (string, error)

// AuthTransport is an http.RoundTripper that adds an Authorization header
// to every request before delegating to Base, fetching the token fresh
// (or from TokenProvider's cache) via GetToken on each round trip.
type AuthTransport struct {
	// Base is the underlying RoundTripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// GetToken supplies the bearer token for each request. A nil GetToken,
	// or one returning an empty token, leaves the request unauthenticated.
	GetToken TokenFunc
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())

	if t.GetToken != nil {
		token, err := t.GetToken()
		if err != nil {
			return nil, errors.Wrap(err, "failed to obtain upstream bearer token")
		}
		if token != "" {
			reqClone.Header.Set("Authorization", "Bearer "+token)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}

// NewAuthTransport builds an AuthTransport wrapping base (nil for
// http.DefaultTransport) with getToken.
func NewAuthTransport(base http.RoundTripper, getToken TokenFunc) *AuthTransport {
	return &AuthTransport{
		Base:     base,
		GetToken: getToken,
	}
}

// NewHTTPClient builds an http.Client whose every request carries a
// bearer token from getToken.
func NewHTTPClient(getToken TokenFunc) *http.Client {
	return &http.Client{
		Transport: NewAuthTransport(nil, getToken),
	}
}

// TokenProvider caches a single upstream bearer token and refreshes it
// shortly before it expires, so concurrent gateway requests hitting the
// same upstream FHIR server never each trigger their own token fetch.
// Safe for concurrent use.
type TokenProvider struct {
	mu          sync.RWMutex
	token       string
	expiresAt   time.Time
	refreshFunc func() (token string, expiresIn time.Duration, err error)
	// refreshBuffer is subtracted from expiresAt to refresh ahead of expiry.
	refreshBuffer time.Duration
}

// NewTokenProvider builds a TokenProvider around refreshFunc, called
// whenever the cached token is absent or within refreshBuffer of expiry
// (default 30s when zero).
func NewTokenProvider(refreshFunc func() (token string, expiresIn time.Duration, err error), refreshBuffer time.Duration) *TokenProvider {
	if refreshBuffer == 0 {
		refreshBuffer = 30 * time.Second
	}
	return &TokenProvider{
		refreshFunc:   refreshFunc,
		refreshBuffer: refreshBuffer,
	}
}

// GetToken returns a valid token, refreshing it first if necessary. Safe
// for concurrent use: the fast path only takes a read lock.
func (p *TokenProvider) GetToken() (string, error) {
	p.mu.RLock()
	if time.Now().Before(p.expiresAt.Add(-p.refreshBuffer)) {
		token := p.token
		p.mu.RUnlock()
		return token, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the write lock.
	if time.Now().Before(p.expiresAt.Add(-p.refreshBuffer)) {
		return p.token, nil
	}

	token, expiresIn, err := p.refreshFunc()
	if err != nil {
		return "", errors.Wrap(err, "failed to refresh upstream bearer token")
	}
	p.token = token
	p.expiresAt = time.Now().Add(expiresIn)
	return token, nil
}

// TokenFunc adapts GetToken to the TokenFunc shape AuthTransport expects.
func (p *TokenProvider) TokenFunc() TokenFunc {
	return p.GetToken
}

// StaticToken returns a TokenFunc that always returns token, for upstream
// servers configured with a long-lived or non-expiring credential.
func StaticToken(token string) TokenFunc {
	return func() (string, error) {
		return token, nil
	}
}

// NoAuth returns a TokenFunc that never adds an Authorization header.
func NoAuth() TokenFunc {
	return func() (string, error) {
		return "", nil
	}
}

// WrapTransport wraps base with bearer-token auth. Compose with
// tracing.WrapTransport to get both spans and auth on the upstream
// client, e.g. httpauth.WrapTransport(tracing.WrapTransport(base), getToken).
func WrapTransport(base http.RoundTripper, getToken TokenFunc) http.RoundTripper {
	return NewAuthTransport(base, getToken)
}

// NewHTTPClientWithTransport builds an http.Client with auth layered on
// top of base (e.g. a traced transport).
func NewHTTPClientWithTransport(base http.RoundTripper, getToken TokenFunc) *http.Client {
	return &http.Client{
		Transport: NewAuthTransport(base, getToken),
	}
}
