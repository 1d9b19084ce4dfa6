package harness

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startHAPI starts a bare HAPI FHIR R4 JPA server and returns its base URL.
func startHAPI(t *testing.T) *url.URL {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "hapiproject/hapi:v6.10.2",
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"hapi.fhir.default_encoding": "json",
		},
		WaitingFor: wait.ForHTTP("/fhir/metadata").WithPort("8080/tcp").WithStartupTimeout(3 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start HAPI FHIR container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	base, err := url.Parse(fmt.Sprintf("http://%s:%s/fhir", host, port.Port()))
	require.NoError(t, err)
	return base
}

// putResource upserts one FHIR resource by resourceType/id via HTTP PUT,
// used to seed fixtures the gateway authorizes against.
func putResource(t *testing.T, base *url.URL, resourceType, id string, body []byte) {
	t.Helper()

	target := base.JoinPath(resourceType, id).String()
	req, err := http.NewRequest(http.MethodPut, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/fhir+json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Lessf(t, resp.StatusCode, 300, "failed to seed %s/%s: status %d", resourceType, id, resp.StatusCode)
}
