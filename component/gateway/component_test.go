package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidProxyTo_ReturnsError(t *testing.T) {
	config := DefaultConfig()
	config.ProxyTo = "://not-a-url"
	_, err := New(config)
	assert.Error(t, err)
}

func emptyBundleResponder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[]}`))
	}
}

func TestHandleSupervised_DeniesWithoutRole(t *testing.T) {
	upstream := httptest.NewServer(emptyBundleResponder())
	defer upstream.Close()

	config := DefaultConfig()
	config.ProxyTo = upstream.URL
	gw, err := New(config)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/_supervised", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, tokenClaimsWithRoles("sub-1", "app-1", "GET_PATIENT")))
	rec := httptest.NewRecorder()

	gw.handleSupervised(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleSupervised_UnauthenticatedWithoutToken(t *testing.T) {
	config := DefaultConfig()
	config.ProxyTo = "http://upstream.invalid"
	gw, err := New(config)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/_supervised", nil)
	rec := httptest.NewRecorder()

	gw.handleSupervised(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func tokenClaimsWithRoles(subject, appID string, roles ...string) tokenClaims {
	c := tokenClaims{Subject: subject, FHIRCoreAppID: appID}
	c.RealmAccess.Roles = roles
	return c
}
