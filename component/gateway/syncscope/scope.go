// Package syncscope implements the Sync-Scope Decision: rewriting a
// sync-shaped search's "_tag" parameter to restrict results to the
// resources the principal's organizational assignments attribute them to.
package syncscope

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/nuts-foundation/fhir-access-gateway/lib/coding"
)

// Strategy names the dimension a principal's visibility is scoped along.
type Strategy string

const (
	CareTeam     Strategy = "CareTeam"
	Organization Strategy = "Organization"
	Location     Strategy = "Location"
)

// ParseStrategy parses a strategy name case-insensitively, as read from
// application configuration JSON.
func ParseStrategy(s string) (Strategy, bool) {
	switch strings.ToLower(s) {
	case "careteam":
		return CareTeam, true
	case "organization":
		return Organization, true
	case "location":
		return Location, true
	default:
		return "", false
	}
}

// Scope is the resolved set of identifiers a principal's sync strategy
// restricts them to. Exactly one of the three lists is expected to be
// populated, matching Strategy; the others are left empty by the caller.
type Scope struct {
	Strategy        Strategy
	CareTeamIDs     []string
	OrganizationIDs []string
	LocationIDs     []string
}

// IsZero reports whether all three identifier lists are empty, the
// "zero-scope" case that must resolve to the sentinel rather than an
// unfiltered search.
func (s Scope) IsZero() bool {
	return len(s.CareTeamIDs) == 0 && len(s.OrganizationIDs) == 0 && len(s.LocationIDs) == 0
}

// Decider rewrites request parameters per the resolved Scope.
type Decider struct {
	// sentinelID is generated once per process and injected for
	// zero-scope principals, so the upstream server returns an empty set.
	sentinelID string
	// systemPrefix, when true, encodes tags as "system|code" instead of
	// bare identifiers. Defaults to false: the upstream server this was
	// built against does not honor system-qualified tag search (see
	// DESIGN.md's Open Question decision). Exposed as a toggle rather
	// than hard-coded, per spec.
	systemPrefix bool
}

// NewDecider creates a Decider with a fresh, unguessable zero-scope
// sentinel identifier. systemPrefix controls whether rewritten tags carry
// their coding system URL.
func NewDecider(systemPrefix bool) *Decider {
	return &Decider{
		sentinelID:   uuid.NewString(),
		systemPrefix: systemPrefix,
	}
}

// SentinelID returns the zero-scope sentinel identifier, exposed for tests
// and for the Access Checker's logging.
func (d *Decider) SentinelID() string {
	return d.sentinelID
}

// Rewrite returns a copy of params with the scope's identifiers merged
// into a single "_tag" value, preserving any pre-existing tags. Pure and
// idempotent: applying it twice to its own output yields the same
// parameter set (duplicate values may appear, which is harmless per
// spec). The result always carries exactly one "_tag" slice entry, never
// two repeated "_tag" query occurrences, since FHIR servers treat
// repeated same-named parameters as an AND rather than the OR/union a
// single comma-separated value gives.
func (d *Decider) Rewrite(params url.Values, scope Scope) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}

	ids := d.identifiers(scope)
	if len(ids) == 0 {
		ids = []string{d.sentinelID}
	}

	merged := append(append([]string{}, out["_tag"]...), ids...)
	out.Set("_tag", strings.Join(merged, ","))
	return out
}

func (d *Decider) identifiers(scope Scope) []string {
	var ids []string
	ids = append(ids, d.encode(coding.CareTeamTagSystem, scope.CareTeamIDs)...)
	ids = append(ids, d.encode(coding.OrganizationTagSystem, scope.OrganizationIDs)...)
	ids = append(ids, d.encode(coding.LocationTagSystem, scope.LocationIDs)...)
	return ids
}

func (d *Decider) encode(system string, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	if !d.systemPrefix {
		out := make([]string, len(ids))
		copy(out, ids)
		return out
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = system + "|" + id
	}
	return out
}
