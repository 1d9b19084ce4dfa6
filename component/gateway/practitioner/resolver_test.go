package practitioner

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestParseReferenceID(t *testing.T) {
	assert.Equal(t, "y", ParseReferenceID("X/y"))
	assert.Equal(t, "y", ParseReferenceID("y"))
	assert.Equal(t, "y/z", ParseReferenceID("X/y/z"))
	assert.Equal(t, "", ParseReferenceID(""))
}

func bundleJSON(t *testing.T, resourceType string, entries ...map[string]any) []byte {
	t.Helper()
	entryList := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		resource := map[string]any{"resourceType": resourceType}
		for k, v := range e {
			resource[k] = v
		}
		raw, err := json.Marshal(resource)
		require.NoError(t, err)
		entryList = append(entryList, map[string]any{"resource": json.RawMessage(raw)})
	}
	data, err := json.Marshal(map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"entry":        entryList,
	})
	require.NoError(t, err)
	return data
}

func TestResolver_Resolve_FullSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	gomock.InOrder(
		client.EXPECT().
			SearchWithContext(gomock.Any(), "Practitioner", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "Practitioner", map[string]any{"id": "pract-1"}), result)
			}),
		client.EXPECT().
			SearchWithContext(gomock.Any(), "CareTeam", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "CareTeam", map[string]any{
					"id":                   "ct-1",
					"managingOrganization": []map[string]any{{"reference": "Organization/org-1"}},
				}), result)
			}),
		client.EXPECT().
			SearchWithContext(gomock.Any(), "PractitionerRole", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "PractitionerRole", map[string]any{
					"id":           "role-1",
					"organization": map[string]any{"reference": "Organization/org-1"},
				}), result)
			}),
		client.EXPECT().
			SearchWithContext(gomock.Any(), "OrganizationAffiliation", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "OrganizationAffiliation", map[string]any{
					"id":       "aff-1",
					"location": []map[string]any{{"reference": "Location/loc-1"}},
				}), result)
			}),
		client.EXPECT().
			SearchWithContext(gomock.Any(), "Location", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "Location"), result)
			}),
		client.EXPECT().
			SearchWithContext(gomock.Any(), "Group", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
				return json.Unmarshal(bundleJSON(t, "Group", map[string]any{"id": "group-1"}), result)
			}),
	)

	resolver := New(client, DefaultConfig())
	details, err := resolver.Resolve(context.Background(), "subject-1")
	require.NoError(t, err)

	assert.Equal(t, "pract-1", details.PractitionerID)
	assert.Equal(t, []string{"ct-1"}, details.CareTeams)
	assert.Equal(t, []string{"org-1"}, details.Organizations)
	assert.Equal(t, []string{"role-1"}, details.PractitionerRoles)
	assert.Equal(t, []string{"aff-1"}, details.OrganizationAffiliations)
	assert.Equal(t, []string{"loc-1"}, details.Locations)
	assert.Equal(t, []string{"group-1"}, details.Groups)
}

func TestResolver_Resolve_PractitionerNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	client.EXPECT().
		SearchWithContext(gomock.Any(), "Practitioner", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
			return json.Unmarshal(bundleJSON(t, "Practitioner"), result)
		})

	resolver := New(client, DefaultConfig())
	details, err := resolver.Resolve(context.Background(), "ghost-subject")
	require.NoError(t, err)
	assert.Equal(t, NotFoundSentinel, details.PractitionerID)
	assert.Empty(t, details.CareTeams)
}

func TestResolver_Resolve_CachesPerSubject(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	// Only one Practitioner search is expected: the second Resolve call
	// for the same subject must be served from cache.
	client.EXPECT().
		SearchWithContext(gomock.Any(), "Practitioner", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, rt string, p url.Values, result any, opts ...fhirclient.Option) error {
			return json.Unmarshal(bundleJSON(t, "Practitioner", map[string]any{"id": "pract-1"}), result)
		}).Times(1)
	// The later steps of the first resolution (CareTeam, PractitionerRole,
	// Group) find nothing.
	client.EXPECT().
		SearchWithContext(gomock.Any(), gomock.Not("Practitioner"), gomock.Any(), gomock.Any()).
		Return(nil).AnyTimes()

	resolver := New(client, DefaultConfig())
	_, err := resolver.Resolve(context.Background(), "subject-1")
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), "subject-1")
	require.NoError(t, err)
}
