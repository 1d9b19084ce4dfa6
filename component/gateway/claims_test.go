package gateway

import (
	"net/http/httptest"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("test-key")}, nil)
	require.NoError(t, err)
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func TestPrincipalFromRequest_MissingAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/Patient", nil)
	_, err := principalFromRequest(req)
	assert.Error(t, err)
}

func TestPrincipalFromRequest_DecodesClaims(t *testing.T) {
	claims := tokenClaims{Subject: "sub-1", FHIRCoreAppID: "app-1", Name: "Ada Lovelace"}
	claims.RealmAccess.Roles = []string{"GET_PATIENT"}

	req := httptest.NewRequest("GET", "/Patient", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, claims))

	principal, err := principalFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", principal.Subject)
	assert.Equal(t, "app-1", principal.ApplicationID)
	assert.Equal(t, "Ada Lovelace", principal.DisplayName)
	assert.True(t, principal.HasRole("GET_PATIENT"))
}

func TestPrincipalFromRequest_MissingApplicationIDIsUnauthenticated(t *testing.T) {
	claims := tokenClaims{Subject: "sub-1"}

	req := httptest.NewRequest("GET", "/Patient", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, claims))

	_, err := principalFromRequest(req)
	assert.Error(t, err)
}
