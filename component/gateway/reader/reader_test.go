package reader

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_OperationType(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		query  string
		want   RestOperationType
	}{
		{"search type", http.MethodGet, "/Patient", "name=Ada", SearchType},
		{"search system", http.MethodGet, "/", "", SearchSys},
		{"get page", http.MethodGet, "/Patient", "_getpages=abc", GetPage},
		{"read", http.MethodGet, "/Patient/123", "", Read},
		{"vread", http.MethodGet, "/Patient/123/_history/1", "", VRead},
		{"create", http.MethodPost, "/Observation", "", Create},
		{"update", http.MethodPut, "/Patient/123", "", Update},
		{"delete", http.MethodDelete, "/Condition/c-1", "", Delete},
		{"bundle post", http.MethodPost, "/", "", Other},
		{"patch defaults other", http.MethodPatch, "/Patient/123", "", Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := tt.path
			if tt.query != "" {
				url += "?" + tt.query
			}
			req := httptest.NewRequest(tt.method, url, nil)
			r := New(req, "https://fhir.example.org")
			assert.Equal(t, tt.want, r.OperationType())
		})
	}
}

func TestReader_IsSyncShaped(t *testing.T) {
	assert.True(t, New(httptest.NewRequest(http.MethodGet, "/Patient", nil), "").IsSyncShaped())
	assert.False(t, New(httptest.NewRequest(http.MethodGet, "/Patient/123", nil), "").IsSyncShaped())
	assert.False(t, New(httptest.NewRequest(http.MethodPost, "/Patient", nil), "").IsSyncShaped())
	assert.False(t, New(httptest.NewRequest(http.MethodGet, "/", nil), "").IsSyncShaped())
}

func TestReader_ResourceNameAndID(t *testing.T) {
	r := New(httptest.NewRequest(http.MethodGet, "/Patient/123", nil), "")
	assert.Equal(t, "Patient", r.ResourceName())
	assert.Equal(t, "123", r.ResourceID())

	bundle := New(httptest.NewRequest(http.MethodPost, "/", nil), "")
	assert.Equal(t, "", bundle.ResourceName())
}

func TestReader_RequestID_GeneratedWhenMissing(t *testing.T) {
	r := New(httptest.NewRequest(http.MethodGet, "/Patient", nil), "")
	assert.NotEmpty(t, r.RequestID())

	withHeader := httptest.NewRequest(http.MethodGet, "/Patient", nil)
	withHeader.Header.Set("X-Request-Id", "req-123")
	assert.Equal(t, "req-123", New(withHeader, "").RequestID())
}

func TestReader_Body_ReadableMoreThanOnce(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/Observation", strings.NewReader(`{"resourceType":"Observation"}`))
	r := New(req, "")

	first, err := r.Body()
	require.NoError(t, err)
	second, err := r.Body()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), "Observation")
}

func TestReader_Parameters_MutableCopy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/Patient?_tag=a", nil)
	r := New(req, "")
	r.Parameters().Add("_tag", "b")
	assert.ElementsMatch(t, []string{"a", "b"}, r.Parameters()["_tag"])
	// Original request is untouched: the reader copies the query.
	assert.Equal(t, []string{"a"}, req.URL.Query()["_tag"])
}
