package harness

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/nuts-foundation/fhir-access-gateway/cmd"
	"github.com/nuts-foundation/fhir-access-gateway/test"
)

// startGateway starts the full gateway (cmd.Start) in a goroutine and waits
// for its internal /status endpoint before returning its public base URL.
func startGateway(t *testing.T, config cmd.Config) (publicBaseURL *url.URL) {
	t.Helper()

	errChan := make(chan error, 1)
	go func() {
		if err := cmd.Start(t.Context(), config); err != nil {
			errChan <- err
		}
	}()

	internalBaseURL, _ := url.Parse(config.HTTP.InternalInterface.BaseURL)
	doneChan, timeoutChan := test.WaitForHTTPStatus(internalBaseURL.JoinPath("status").String(), http.StatusOK)
	select {
	case err := <-errChan:
		t.Fatalf("failed to start gateway: %v", err)
	case <-doneChan:
		t.Log("gateway started successfully")
	case err := <-timeoutChan:
		t.Fatalf("timeout waiting for gateway to start: %v", err)
	}

	publicBaseURL, _ = url.Parse(config.HTTP.PublicInterface.BaseURL)
	return publicBaseURL
}
