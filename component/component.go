// Package component defines the lifecycle contract shared by every
// long-running piece of the gateway (HTTP server, tracing, the gateway
// pipeline itself). cmd.Start wires a slice of these together.
package component

import (
	"context"
	"net/http"
)

// Lifecycle is implemented by every component that cmd.Start manages.
// RegisterHttpHandlers is called once, before Start, for every component;
// Start is called for all components before any blocks on Stop.
type Lifecycle interface {
	RegisterHttpHandlers(publicMux, internalMux *http.ServeMux)
	Start() error
	Stop(ctx context.Context) error
}
