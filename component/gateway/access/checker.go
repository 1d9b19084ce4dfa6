package access

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/appconfig"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/practitioner"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/reader"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/syncscope"
	"github.com/nuts-foundation/fhir-access-gateway/lib/logging"
	"github.com/pkg/errors"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// PermissionChecker is the "permission" checker factory of spec.md §4.2:
// it resolves the principal's role set against the requested resource
// and verb, and on grant delegates mutation/post-processing to the
// Sync-Scope Decision.
type PermissionChecker struct {
	Resolver   *practitioner.Resolver
	AppConfig  *appconfig.Loader
	SyncScope  *syncscope.Decider
	// DevMode relaxes bundle role enforcement: missing roles are logged
	// but the bundle is still granted (spec.md §8 end-to-end scenario 6).
	DevMode bool
}

// Check implements Checker.
func (c *PermissionChecker) Check(ctx context.Context, rd *reader.Reader, principal Principal) (Decision, error) {
	if principal.ApplicationID == "" {
		return Decision{}, errors.Wrap(ErrConfiguration, "missing fhir_core_app_id claim")
	}

	if rd.ResourceName() == "" && rd.Method() == http.MethodPost {
		return c.checkBundle(ctx, rd, principal)
	}

	if !c.roleGrants(principal, rd.Method(), rd.ResourceName()) {
		return Decision{Granted: false}, nil
	}
	return c.grant(ctx, rd, principal)
}

// roleGrants reports whether principal's roles satisfy the resource/verb
// rule: MANAGE_<RESOURCE> or <VERB>_<RESOURCE>. Only GET/DELETE/POST/PUT
// are ever granted; other verbs (e.g. PATCH) default to deny.
func (c *PermissionChecker) roleGrants(principal Principal, verb, resourceName string) bool {
	switch verb {
	case http.MethodGet, http.MethodDelete, http.MethodPost, http.MethodPut:
	default:
		return false
	}
	upperResource := strings.ToUpper(resourceName)
	specific := verb + "_" + upperResource
	admin := "MANAGE_" + upperResource
	return principal.HasRole(specific) || principal.HasRole(admin)
}

func (c *PermissionChecker) checkBundle(ctx context.Context, rd *reader.Reader, principal Principal) (Decision, error) {
	body, err := rd.Body()
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to read bundle body")
	}

	var bundle fhir.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return Decision{}, errors.Wrap(err, "failed to unmarshal bundle body")
	}

	allGranted := true
	for _, entry := range bundle.Entry {
		verb, resourceName := bundleEntryVerbAndResource(entry)
		if !c.roleGrants(principal, verb, resourceName) {
			allGranted = false
			if c.DevMode {
				slog.WarnContext(ctx, "bundle entry missing required role, granted because dev mode is enabled",
					slog.String("verb", verb), slog.String("resource", resourceName), logging.Principal(principal.Subject))
				continue
			}
			return Decision{Granted: false}, nil
		}
	}
	if !allGranted && !c.DevMode {
		return Decision{Granted: false}, nil
	}
	// Bundle submissions are never sync-shaped, so no mutation/post-process.
	return Decision{Granted: true}, nil
}

func bundleEntryVerbAndResource(entry fhir.BundleEntry) (verb, resourceName string) {
	if entry.Request != nil {
		verb = httpVerbString(entry.Request.Method)
		resourceName = firstURLSegment(entry.Request.Url)
		return
	}
	verb = http.MethodPost
	resourceName = resourceTypeOf(entry.Resource)
	return
}

func httpVerbString(v fhir.HTTPVerb) string {
	switch v {
	case fhir.HTTPVerbGET:
		return http.MethodGet
	case fhir.HTTPVerbPOST:
		return http.MethodPost
	case fhir.HTTPVerbPUT:
		return http.MethodPut
	case fhir.HTTPVerbDELETE:
		return http.MethodDelete
	case fhir.HTTPVerbPATCH:
		return http.MethodPatch
	default:
		return http.MethodPost
	}
}

func firstURLSegment(url string) string {
	trimmed := strings.TrimPrefix(url, "/")
	if idx := strings.IndexAny(trimmed, "/?"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func resourceTypeOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var envelope struct {
		ResourceType string `json:"resourceType"`
	}
	_ = json.Unmarshal(raw, &envelope)
	return envelope.ResourceType
}

// grant resolves the principal's sync scope and returns a Decision whose
// mutation carries the Sync-Scope Decision's "_tag" rewrite when the
// request is sync-shaped. No post-processor is set.
func (c *PermissionChecker) grant(ctx context.Context, rd *reader.Reader, principal Principal) (Decision, error) {
	if !rd.IsSyncShaped() {
		return Decision{Granted: true}, nil
	}

	strategy, err := c.AppConfig.Strategy(ctx, principal.ApplicationID)
	if err != nil {
		return Decision{}, errors.Wrap(ErrConfiguration, err.Error())
	}

	details, err := c.Resolver.Resolve(ctx, principal.Subject)
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to resolve practitioner details")
	}

	scope := scopeFor(strategy, details)
	mutation := &Mutation{AddedParameters: map[string][]string{}}
	rewritten := c.SyncScope.Rewrite(rd.Parameters(), scope)
	mutation.AddedParameters["_tag"] = rewritten["_tag"]

	return Decision{
		Granted:  true,
		Mutation: mutation,
	}, nil
}

func scopeFor(strategy syncscope.Strategy, details practitioner.Details) syncscope.Scope {
	scope := syncscope.Scope{Strategy: strategy}
	switch strategy {
	case syncscope.CareTeam:
		scope.CareTeamIDs = details.CareTeams
	case syncscope.Organization:
		scope.OrganizationIDs = details.Organizations
	case syncscope.Location:
		scope.LocationIDs = details.AttributedLocations
	}
	return scope
}
