package appconfig

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLoader_Strategy_ResolvesFromCompositionAndBinary(t *testing.T) {
	payloadJSON, err := json.Marshal(payload{SyncStrategy: "organization"})
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(payloadJSON)

	mux := http.NewServeMux()
	mux.HandleFunc("/Composition", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{
			"resourceType": "Bundle",
			"type": "searchset",
			"entry": [{"resource": {
				"resourceType": "Composition",
				"id": "comp-1",
				"section": [{"entry": [{"reference": "Binary/bin-1"}]}]
			}}]
		}`))
	})
	mux.HandleFunc("/Binary/bin-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Binary","id":"bin-1","contentType":"application/json","data":"` + encoded + `"}`))
	})
	server := newTestClient(t, mux)

	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := fhirclient.New(baseURL, http.DefaultClient, nil)

	loader := New(client, DefaultConfig())
	strategy, err := loader.Strategy(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Organization", string(strategy))
}

func TestLoader_Strategy_MissingCompositionIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Composition", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[]}`))
	})
	server := newTestClient(t, mux)

	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := fhirclient.New(baseURL, http.DefaultClient, nil)

	loader := New(client, DefaultConfig())
	_, err = loader.Strategy(context.Background(), "missing-app")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestLoader_Strategy_CachesPerApplicationID(t *testing.T) {
	payloadJSON, err := json.Marshal(payload{SyncStrategy: "location"})
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(payloadJSON)

	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/Composition", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{
			"resourceType": "Bundle",
			"type": "searchset",
			"entry": [{"resource": {
				"resourceType": "Composition",
				"id": "comp-1",
				"section": [{"entry": [{"reference": "Binary/bin-1"}]}]
			}}]
		}`))
	})
	mux.HandleFunc("/Binary/bin-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Binary","id":"bin-1","contentType":"application/json","data":"` + encoded + `"}`))
	})
	server := newTestClient(t, mux)

	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := fhirclient.New(baseURL, http.DefaultClient, nil)

	loader := New(client, DefaultConfig())
	_, err = loader.Strategy(context.Background(), "app-1")
	require.NoError(t, err)
	_, err = loader.Strategy(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
