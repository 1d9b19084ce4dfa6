// Package practitioner implements the Practitioner Graph Resolver: given
// a token subject, it walks the upstream FHIR graph (Practitioner,
// CareTeam, Organization, PractitionerRole, OrganizationAffiliation,
// Location, Group) to produce the sets a principal's access decisions are
// based on.
package practitioner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/nuts-foundation/fhir-access-gateway/lib/coding"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// NotFoundSentinel is the PractitionerId assigned when no Practitioner
// resource has the requested business identifier.
const NotFoundSentinel = "PRACTITIONER_NOT_FOUND"

// Client is the slice of fhirclient.Client the resolver needs. Declaring
// it locally (rather than depending on the full upstream interface)
// keeps the resolver's test double small and lets *fhirclient.Client
// satisfy it structurally.
type Client interface {
	SearchWithContext(ctx context.Context, resourceType string, params url.Values, result any, opts ...fhirclient.Option) error
	ReadWithContext(ctx context.Context, path string, result any, opts ...fhirclient.Option) error
}

// LocationNode is one entry of a location hierarchy's parent→children map.
type LocationNode struct {
	LocationID string
	Children   []string
}

// Details is the resolved graph for one principal.
type Details struct {
	PractitionerID            string
	CareTeams                 []string
	Organizations             []string
	PractitionerRoles         []string
	Groups                    []string
	OrganizationAffiliations  []string
	Locations                 []string
	LocationHierarchyList     []LocationNode
	// AttributedLocations flattens LocationHierarchyList into every
	// descendant location id, per step 7 of the resolution algorithm.
	AttributedLocations []string
}

// Config configures the Resolver's cache.
type Config struct {
	// DetailsCacheTTL bounds how long a resolved Details stays cached
	// per subject. Defaults to 5 minutes.
	DetailsCacheTTL time.Duration `koanf:"detailscachettl"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{DetailsCacheTTL: 5 * time.Minute}
}

// Resolver resolves and caches Practitioner Details per subject.
type Resolver struct {
	client Client
	cache  *cache.Cache
	tracer trace.Tracer
}

// New creates a Resolver backed by the given upstream FHIR client.
func New(client Client, config Config) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache.New(config.DetailsCacheTTL, config.DetailsCacheTTL*2),
		tracer: otel.Tracer("practitioner"),
	}
}

// ParseReferenceID normalizes a FHIR reference of the form "Type/id" to
// "id"; a string without "/" is returned verbatim. Only the first "/" is
// significant, so "Type/id/more" yields "id/more".
func ParseReferenceID(ref string) string {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref
	}
	return ref[idx+1:]
}

// Resolve runs the full 9-step resolution algorithm for subject,
// returning a cached result if one is still fresh.
func (r *Resolver) Resolve(ctx context.Context, subject string) (Details, error) {
	if cached, ok := r.cache.Get(subject); ok {
		return cached.(Details), nil
	}

	details, err := r.resolve(ctx, subject)
	if err != nil {
		return Details{}, err
	}

	r.cache.SetDefault(subject, details)
	return details, nil
}

func (r *Resolver) resolve(ctx context.Context, subject string) (Details, error) {
	practitionerID, err := r.fetchPractitionerID(ctx, subject)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve practitioner by subject")
	}
	if practitionerID == NotFoundSentinel {
		return Details{PractitionerID: NotFoundSentinel}, nil
	}

	careTeams, careTeamOrgs, err := r.fetchCareTeams(ctx, practitionerID)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve care teams")
	}

	practitionerRoles, roleOrgs, err := r.fetchPractitionerRoles(ctx, practitionerID)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve practitioner roles")
	}

	organizations := dedup(careTeamOrgs, roleOrgs)

	affiliations, locations, err := r.fetchOrganizationAffiliations(ctx, organizations)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve organization affiliations")
	}

	hierarchy, attributed, err := r.fetchLocationHierarchy(ctx, locations)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve location hierarchy")
	}

	groups, err := r.fetchPractitionerGroups(ctx, practitionerID)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to resolve practitioner groups")
	}

	return Details{
		PractitionerID:           practitionerID,
		CareTeams:                careTeams,
		Organizations:            organizations,
		PractitionerRoles:        practitionerRoles,
		Groups:                   groups,
		OrganizationAffiliations: affiliations,
		Locations:                locations,
		LocationHierarchyList:    hierarchy,
		AttributedLocations:      attributed,
	}, nil
}

func (r *Resolver) fetchPractitionerID(ctx context.Context, subject string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:Practitioner")
	defer span.End()

	var bundle fhir.Bundle
	params := url.Values{"identifier": {subject}}
	if err := r.client.SearchWithContext(ctx, "Practitioner", params, &bundle); err != nil {
		return "", err
	}
	ids := entryIDs(bundle)
	if len(ids) == 0 {
		return NotFoundSentinel, nil
	}
	return ids[0], nil
}

func (r *Resolver) fetchCareTeams(ctx context.Context, practitionerID string) ([]string, []string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:CareTeam")
	defer span.End()

	if practitionerID == "" {
		return nil, nil, nil
	}
	var bundle fhir.Bundle
	params := url.Values{"participant": {"Practitioner/" + practitionerID}}
	if err := r.client.SearchWithContext(ctx, "CareTeam", params, &bundle); err != nil {
		return nil, nil, err
	}

	var careTeams, managingOrgs []string
	for _, entry := range bundle.Entry {
		var careTeam fhir.CareTeam
		if err := unmarshalEntry(entry, &careTeam); err != nil {
			return nil, nil, err
		}
		if careTeam.Id != nil {
			careTeams = append(careTeams, *careTeam.Id)
		}
		for _, managingOrg := range careTeam.ManagingOrganization {
			if managingOrg.Reference != nil {
				managingOrgs = append(managingOrgs, ParseReferenceID(*managingOrg.Reference))
			}
		}
	}
	return careTeams, managingOrgs, nil
}

func (r *Resolver) fetchPractitionerRoles(ctx context.Context, practitionerID string) ([]string, []string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:PractitionerRole")
	defer span.End()

	if practitionerID == "" {
		return nil, nil, nil
	}
	var bundle fhir.Bundle
	params := url.Values{"practitioner": {"Practitioner/" + practitionerID}}
	if err := r.client.SearchWithContext(ctx, "PractitionerRole", params, &bundle); err != nil {
		return nil, nil, err
	}

	var roles, orgs []string
	for _, entry := range bundle.Entry {
		var role fhir.PractitionerRole
		if err := unmarshalEntry(entry, &role); err != nil {
			return nil, nil, err
		}
		if role.Id != nil {
			roles = append(roles, *role.Id)
		}
		if role.Organization != nil && role.Organization.Reference != nil {
			orgs = append(orgs, ParseReferenceID(*role.Organization.Reference))
		}
	}
	return roles, orgs, nil
}

func (r *Resolver) fetchOrganizationAffiliations(ctx context.Context, organizations []string) ([]string, []string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:OrganizationAffiliation")
	defer span.End()

	if len(organizations) == 0 {
		return nil, nil, nil
	}

	references := make([]string, len(organizations))
	for i, id := range organizations {
		references[i] = "Organization/" + id
	}

	var bundle fhir.Bundle
	params := url.Values{"primary-organization": {strings.Join(references, ",")}}
	if err := r.client.SearchWithContext(ctx, "OrganizationAffiliation", params, &bundle); err != nil {
		return nil, nil, err
	}

	var affiliations, locations []string
	for _, entry := range bundle.Entry {
		var affiliation fhir.OrganizationAffiliation
		if err := unmarshalEntry(entry, &affiliation); err != nil {
			return nil, nil, err
		}
		if affiliation.Id != nil {
			affiliations = append(affiliations, *affiliation.Id)
		}
		// Only the first location of each affiliation is taken. This
		// mirrors the upstream source's getLocationIdsByOrganizationAffiliations,
		// flagged in spec.md as a candidate for review; preserved as-is
		// here (see DESIGN.md).
		if len(affiliation.Location) > 0 && affiliation.Location[0].Reference != nil {
			locations = append(locations, ParseReferenceID(*affiliation.Location[0].Reference))
		}
	}
	return affiliations, dedupSingle(locations), nil
}

const maxHierarchyDepth = 25

func (r *Resolver) fetchLocationHierarchy(ctx context.Context, roots []string) ([]LocationNode, []string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:LocationHierarchy")
	defer span.End()

	if len(roots) == 0 {
		return nil, nil, nil
	}

	var hierarchy []LocationNode
	visited := map[string]bool{}
	attributed := map[string]bool{}

	var walk func(parentID string, depth int) error
	walk = func(parentID string, depth int) error {
		if visited[parentID] || depth > maxHierarchyDepth {
			return nil
		}
		visited[parentID] = true
		attributed[parentID] = true

		var bundle fhir.Bundle
		params := url.Values{"partof": {"Location/" + parentID}}
		if err := r.client.SearchWithContext(ctx, "Location", params, &bundle); err != nil {
			return err
		}

		var children []string
		for _, entry := range bundle.Entry {
			var location fhir.Location
			if err := unmarshalEntry(entry, &location); err != nil {
				return err
			}
			if location.Id == nil {
				continue
			}
			children = append(children, *location.Id)
		}
		hierarchy = append(hierarchy, LocationNode{LocationID: parentID, Children: children})

		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, 0); err != nil {
			return nil, nil, err
		}
	}

	attributedList := make([]string, 0, len(attributed))
	for id := range attributed {
		attributedList = append(attributedList, id)
	}
	return hierarchy, attributedList, nil
}

func (r *Resolver) fetchPractitionerGroups(ctx context.Context, practitionerID string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch:Group")
	defer span.End()

	if practitionerID == "" {
		return nil, nil
	}
	var bundle fhir.Bundle
	params := url.Values{
		"member": {"Practitioner/" + practitionerID},
		"code":   {fmt.Sprintf("%s|%s", coding.SNOMED, coding.PractitionerGroupCode)},
	}
	if err := r.client.SearchWithContext(ctx, "Group", params, &bundle); err != nil {
		return nil, err
	}

	var groups []string
	for _, entry := range bundle.Entry {
		var group fhir.Group
		if err := unmarshalEntry(entry, &group); err != nil {
			return nil, err
		}
		if group.Id != nil {
			groups = append(groups, *group.Id)
		}
	}
	return groups, nil
}

func entryIDs(bundle fhir.Bundle) []string {
	var ids []string
	for _, entry := range bundle.Entry {
		var practitioner fhir.Practitioner
		if err := unmarshalEntry(entry, &practitioner); err != nil {
			continue
		}
		if practitioner.Id != nil {
			ids = append(ids, *practitioner.Id)
		}
	}
	return ids
}

func unmarshalEntry(entry fhir.BundleEntry, target any) error {
	if entry.Resource == nil {
		return nil
	}
	return json.Unmarshal(entry.Resource, target)
}

// dedup deduplicates the union of a and b by value, first-seen wins.
func dedup(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupSingle(a []string) []string {
	return dedup(a, nil)
}
