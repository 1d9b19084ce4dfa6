package harness

import (
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// tokenSigningKey is an arbitrary HS256 key. The gateway never verifies the
// signature (it trusts its network placement behind a verifying ingress),
// so any key that produces a structurally valid JWT is sufficient here.
var tokenSigningKey = []byte("e2e-test-signing-key-not-verified-by-gateway")

type claims struct {
	Subject           string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	FHIRCoreAppID     string   `json:"fhir_core_app_id"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// MintToken builds a signed (but not gateway-verified) bearer token
// carrying the given subject, application id and roles.
func MintToken(t *testing.T, subject, applicationID string, roles ...string) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: tokenSigningKey}, nil)
	require.NoError(t, err)

	c := claims{
		Subject:           subject,
		PreferredUsername: subject,
		Name:              subject,
		FHIRCoreAppID:     applicationID,
	}
	c.RealmAccess.Roles = roles

	raw, err := jwt.Signed(signer).Claims(c).Serialize()
	require.NoError(t, err)
	return raw
}
