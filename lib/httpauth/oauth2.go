package httpauth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nuts-foundation/fhir-access-gateway/lib/logging"
	"github.com/pkg/errors"
)

// OAuth2Config configures client-credentials authentication against the
// upstream FHIR server's token endpoint (the gateway.upstreamauth block of
// the configuration file; the GATEWAY_* environment mapping does not reach
// nested keys such as these).
type OAuth2Config struct {
	// TokenURL is the upstream identity provider's token endpoint.
	TokenURL string `koanf:"tokenurl"`
	ClientID string `koanf:"clientid"`
	// ClientSecret is the client credentials grant's secret.
	ClientSecret string `koanf:"clientsecret"`
	// Scopes, if set, is requested space-separated per the grant.
	Scopes []string `koanf:"scopes"`
}

// IsConfigured reports whether every field the client credentials grant
// needs is set. Used to decide whether gateway.New attaches upstream
// auth at all.
func (c OAuth2Config) IsConfigured() bool {
	return c.TokenURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// oauth2TokenResponse is the token endpoint's RFC 6749 §5.1 response body.
type oauth2TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// NewOAuth2TokenProvider builds a TokenProvider that fetches tokens from
// config's token endpoint via the client credentials grant. refreshBuffer
// is how long before expiry to refresh (default 30s when zero).
func NewOAuth2TokenProvider(config OAuth2Config, refreshBuffer time.Duration) (*TokenProvider, error) {
	if !config.IsConfigured() {
		return nil, errors.New("upstream OAuth2 configuration is incomplete: tokenurl, clientid and clientsecret are required")
	}

	return NewTokenProvider(func() (string, time.Duration, error) {
		return fetchOAuth2Token(config)
	}, refreshBuffer), nil
}

// fetchOAuth2Token performs the client credentials grant against
// config.TokenURL and returns the access token and its lifetime.
func fetchOAuth2Token(config OAuth2Config) (string, time.Duration, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {config.ClientID},
		"client_secret": {config.ClientSecret},
	}
	if len(config.Scopes) > 0 {
		data.Set("scope", strings.Join(config.Scopes, " "))
	}

	req, err := http.NewRequest(http.MethodPost, config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to build upstream token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "upstream token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to read upstream token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, errors.Errorf("upstream token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp oauth2TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, errors.Wrap(err, "failed to parse upstream token response")
	}
	if tokenResp.AccessToken == "" {
		return "", 0, errors.New("upstream token response did not contain an access_token")
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 1 * time.Hour
		slog.Warn("upstream token response did not include expires_in, defaulting to 1 hour")
	}

	slog.Debug("obtained upstream OAuth2 access token", logging.FHIRServer(config.TokenURL), slog.String("expires_in", expiresIn.String()))
	return tokenResp.AccessToken, expiresIn, nil
}

// NewOAuth2HTTPClient builds an http.Client that authenticates to the
// upstream FHIR server via the client credentials grant, layered on top
// of baseTransport (nil for http.DefaultTransport, or
// tracing.WrapTransport(nil) to keep spans on the upstream client).
func NewOAuth2HTTPClient(config OAuth2Config, baseTransport http.RoundTripper) (*http.Client, error) {
	tokenProvider, err := NewOAuth2TokenProvider(config, 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: NewAuthTransport(baseTransport, tokenProvider.TokenFunc()),
	}, nil
}

// MustNewOAuth2HTTPClient is NewOAuth2HTTPClient, panicking on error. Only
// safe once config has already been validated at startup.
func MustNewOAuth2HTTPClient(config OAuth2Config, baseTransport http.RoundTripper) *http.Client {
	client, err := NewOAuth2HTTPClient(config, baseTransport)
	if err != nil {
		panic(err)
	}
	return client
}
