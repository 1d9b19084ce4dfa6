// Package status exposes a minimal unauthenticated health endpoint on
// the internal mux, used by orchestrators and by the e2e test harness to
// detect that the gateway has finished starting.
package status

import (
	"context"
	"net/http"
)

// version is overridden at build time via -ldflags, mirroring the
// convention of reporting an unknown version for local builds.
var version = "unknown"

// Version returns the build version string.
func Version() string {
	return version
}

// Component serves GET /status on the internal mux.
type Component struct{}

// New creates a status component.
func New() *Component {
	return &Component{}
}

func (c *Component) RegisterHttpHandlers(_, internalMux *http.ServeMux) {
	internalMux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func (c *Component) Start() error {
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	return nil
}
