package gateway

import (
	"net/http"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/access"
)

// tokenClaims is the subset of bearer-token claims the gateway relies on
// (spec.md §6): sub, preferred_username, name, realm_access.roles and
// fhir_core_app_id. The token has already been verified upstream (by the
// identity provider / ingress); the gateway only decodes it.
type tokenClaims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	FHIRCoreAppID     string `json:"fhir_core_app_id"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// acceptedAlgorithms lists the signature algorithms go-jose will parse the
// token header for. Verification is never performed here (UnsafeClaimsWithoutVerification),
// so this only needs to be permissive enough to parse tokens issued by any
// realistic identity provider.
var acceptedAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.HS256, jose.HS384, jose.HS512,
}

// principalFromRequest extracts and decodes the bearer token's claims,
// without verifying its signature (the gateway trusts its network
// placement behind an already-verifying proxy/ingress, per spec.md §6).
func principalFromRequest(r *http.Request) (access.Principal, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return access.Principal{}, access.ErrUnauthenticated
	}
	raw := strings.TrimPrefix(header, prefix)

	token, err := jwt.ParseSigned(raw, acceptedAlgorithms)
	if err != nil {
		return access.Principal{}, access.ErrUnauthenticated
	}

	var claims tokenClaims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return access.Principal{}, access.ErrUnauthenticated
	}
	if claims.Subject == "" || claims.FHIRCoreAppID == "" {
		return access.Principal{}, access.ErrUnauthenticated
	}

	roles := make(map[string]struct{}, len(claims.RealmAccess.Roles))
	for _, role := range claims.RealmAccess.Roles {
		roles[role] = struct{}{}
	}

	return access.Principal{
		Subject:           claims.Subject,
		PreferredUsername: claims.PreferredUsername,
		DisplayName:       claims.Name,
		Roles:             roles,
		ApplicationID:     claims.FHIRCoreAppID,
	}, nil
}
