package practitioner

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// ResolveSupervised returns the Practitioner Details of every practitioner
// attributed to principal's location hierarchy: the union of practitioners
// participating in care-teams managed by an organization affiliated to any
// location in principal's AttributedLocations. Care-teams are deduplicated
// by id before their participants are resolved.
func (r *Resolver) ResolveSupervised(ctx context.Context, principal Details) ([]Details, error) {
	if len(principal.AttributedLocations) == 0 {
		return nil, nil
	}

	organizations, err := r.organizationsAffiliatedToLocations(ctx, principal.AttributedLocations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve organizations affiliated to attributed locations")
	}
	if len(organizations) == 0 {
		return nil, nil
	}

	careTeamIDs, err := r.careTeamsManagedBy(ctx, organizations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve care teams managed by affiliated organizations")
	}
	if len(careTeamIDs) == 0 {
		return nil, nil
	}

	practitionerIDs, err := r.careTeamPractitionerIDs(ctx, careTeamIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve care team participants")
	}

	var out []Details
	for _, practitionerID := range practitionerIDs {
		details, err := r.resolveByPractitionerID(ctx, practitionerID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve attributed practitioner %s", practitionerID)
		}
		out = append(out, details)
	}
	return out, nil
}

func (r *Resolver) organizationsAffiliatedToLocations(ctx context.Context, locations []string) ([]string, error) {
	references := make([]string, len(locations))
	for i, id := range locations {
		references[i] = "Location/" + id
	}

	var bundle fhir.Bundle
	if err := r.client.SearchWithContext(ctx, "OrganizationAffiliation", url.Values{"location": references}, &bundle); err != nil {
		return nil, err
	}

	var organizations []string
	for _, entry := range bundle.Entry {
		var affiliation fhir.OrganizationAffiliation
		if err := unmarshalEntry(entry, &affiliation); err != nil {
			return nil, err
		}
		if affiliation.Organization != nil && affiliation.Organization.Reference != nil {
			organizations = append(organizations, ParseReferenceID(*affiliation.Organization.Reference))
		}
	}
	return dedupSingle(organizations), nil
}

func (r *Resolver) careTeamsManagedBy(ctx context.Context, organizations []string) ([]string, error) {
	references := make([]string, len(organizations))
	for i, id := range organizations {
		references[i] = "Organization/" + id
	}

	var bundle fhir.Bundle
	if err := r.client.SearchWithContext(ctx, "CareTeam", url.Values{"managing-organization": references}, &bundle); err != nil {
		return nil, err
	}

	var careTeamIDs []string
	for _, entry := range bundle.Entry {
		var careTeam fhir.CareTeam
		if err := unmarshalEntry(entry, &careTeam); err != nil {
			return nil, err
		}
		if careTeam.Id != nil {
			careTeamIDs = append(careTeamIDs, *careTeam.Id)
		}
	}
	return dedupSingle(careTeamIDs), nil
}

func (r *Resolver) careTeamPractitionerIDs(ctx context.Context, careTeamIDs []string) ([]string, error) {
	references := make([]string, len(careTeamIDs))
	for i, id := range careTeamIDs {
		references[i] = "CareTeam/" + id
	}

	var practitionerIDs []string
	for _, ref := range references {
		var careTeam fhir.CareTeam
		if err := r.client.ReadWithContext(ctx, ref, &careTeam); err != nil {
			return nil, err
		}
		for _, participant := range careTeam.Participant {
			if participant.Member == nil || participant.Member.Reference == nil {
				continue
			}
			if !isPractitionerReference(*participant.Member.Reference) {
				continue
			}
			practitionerIDs = append(practitionerIDs, ParseReferenceID(*participant.Member.Reference))
		}
	}
	return dedupSingle(practitionerIDs), nil
}

func isPractitionerReference(ref string) bool {
	return len(ref) > len("Practitioner/") && ref[:len("Practitioner/")] == "Practitioner/"
}

// resolveByPractitionerID runs steps 2-9 of the resolution algorithm
// directly from a known Practitioner FHIR id, skipping the subject lookup
// of step 1 (used for supervised practitioners, whose id is already known
// from a CareTeam participant reference rather than from a token subject).
func (r *Resolver) resolveByPractitionerID(ctx context.Context, practitionerID string) (Details, error) {
	careTeams, careTeamOrgs, err := r.fetchCareTeams(ctx, practitionerID)
	if err != nil {
		return Details{}, err
	}
	practitionerRoles, roleOrgs, err := r.fetchPractitionerRoles(ctx, practitionerID)
	if err != nil {
		return Details{}, err
	}
	organizations := dedup(careTeamOrgs, roleOrgs)

	affiliations, locations, err := r.fetchOrganizationAffiliations(ctx, organizations)
	if err != nil {
		return Details{}, err
	}
	hierarchy, attributed, err := r.fetchLocationHierarchy(ctx, locations)
	if err != nil {
		return Details{}, err
	}
	groups, err := r.fetchPractitionerGroups(ctx, practitionerID)
	if err != nil {
		return Details{}, err
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
