package harness

import (
	"net/url"
	"testing"

	"github.com/nuts-foundation/fhir-access-gateway/cmd"
	libHTTP "github.com/nuts-foundation/fhir-access-gateway/component/http"
)

// Details describes the fixtures seeded into HAPI and the running gateway,
// used by the e2e tests to build requests and assert on audit output.
type Details struct {
	HAPIBaseURL    *url.URL
	GatewayBaseURL *url.URL

	// OrganizationScopedSubject identifies a Practitioner that belongs to
	// CareTeam/ct-1, managed by Organization/org-1, for applicationId app-1
	// (which is configured with the Organization sync strategy).
	OrganizationScopedSubject string
	// ZeroScopeSubject identifies a Practitioner with no CareTeam,
	// PractitionerRole or OrganizationAffiliation at all.
	ZeroScopeSubject string
	ApplicationID    string
	OrganizationID   string
	// PatientID owns the seeded Condition/c-1, used by the create/delete
	// audit scenarios.
	PatientID string
}

// Start starts a HAPI FHIR server, seeds it with a practitioner graph and
// application configuration, then starts the gateway in front of it.
func Start(t *testing.T) Details {
	t.Helper()

	hapiBaseURL := startHAPI(t)
	seedFixtures(t, hapiBaseURL)

	config := cmd.DefaultConfig()
	config.HTTP = libHTTP.TestConfig()
	config.Gateway.ProxyTo = hapiBaseURL.String()
	config.Gateway.DevMode = false

	gatewayBaseURL := startGateway(t, config)

	return Details{
		HAPIBaseURL:               hapiBaseURL,
		GatewayBaseURL:            gatewayBaseURL,
		OrganizationScopedSubject: "practitioner-1",
		ZeroScopeSubject:          "practitioner-2",
		ApplicationID:             "app-1",
		OrganizationID:            "org-1",
		PatientID:                 "pat-1",
	}
}

const appConfigPayload = `eyJzeW5jU3RyYXRlZ3kiOiJPcmdhbml6YXRpb24ifQ==`

func seedFixtures(t *testing.T, base *url.URL) {
	t.Helper()

	putResource(t, base, "Organization", "org-1", []byte(`{
		"resourceType":"Organization","id":"org-1","name":"Care2Cure"
	}`))

	putResource(t, base, "Practitioner", "pract-1", []byte(`{
		"resourceType":"Practitioner","id":"pract-1",
		"identifier":[{"value":"practitioner-1"}]
	}`))
	putResource(t, base, "Practitioner", "pract-2", []byte(`{
		"resourceType":"Practitioner","id":"pract-2",
		"identifier":[{"value":"practitioner-2"}]
	}`))

	putResource(t, base, "CareTeam", "ct-1", []byte(`{
		"resourceType":"CareTeam","id":"ct-1",
		"participant":[{"member":{"reference":"Practitioner/pract-1"}}],
		"managingOrganization":[{"reference":"Organization/org-1"}]
	}`))

	putResource(t, base, "Binary", "bin-1", []byte(`{
		"resourceType":"Binary","id":"bin-1",
		"contentType":"application/json",
		"data":"`+appConfigPayload+`"
	}`))
	putResource(t, base, "Composition", "comp-1", []byte(`{
		"resourceType":"Composition","id":"comp-1",
		"identifier":{"value":"app-1"},
		"section":[{"entry":[{"reference":"Binary/bin-1"}]}]
	}`))

	putResource(t, base, "Patient", "pat-1", []byte(`{
		"resourceType":"Patient","id":"pat-1"
	}`))
	putResource(t, base, "Condition", "c-1", []byte(`{
		"resourceType":"Condition","id":"c-1",
		"subject":{"reference":"Patient/pat-1"}
	}`))
}
