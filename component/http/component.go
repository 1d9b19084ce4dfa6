// Package http provides the component that actually listens on a socket
// and serves the public and internal muxes built up by every other
// component's RegisterHttpHandlers.
package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// InterfaceConfig configures one listening interface.
type InterfaceConfig struct {
	// Address is the host:port to listen on, e.g. ":8080".
	Address string `koanf:"address"`
	// BaseURL is the externally reachable base URL for this interface,
	// used by tests and health checks to address the server they started.
	BaseURL string `koanf:"baseurl"`
}

// Config configures the HTTP component's public and internal listeners.
type Config struct {
	PublicInterface   InterfaceConfig `koanf:"public"`
	InternalInterface InterfaceConfig `koanf:"internal"`
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration `koanf:"readheadertimeout"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		PublicInterface:   InterfaceConfig{Address: ":8080", BaseURL: "http://localhost:8080"},
		InternalInterface: InterfaceConfig{Address: ":8081", BaseURL: "http://localhost:8081"},
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// TestConfig returns a configuration bound to fixed loopback ports outside
// the default range, suitable for e2e tests that need to address the
// server they started without racing Start for the real listener address.
func TestConfig() Config {
	return Config{
		PublicInterface:   InterfaceConfig{Address: "127.0.0.1:18080", BaseURL: "http://127.0.0.1:18080"},
		InternalInterface: InterfaceConfig{Address: "127.0.0.1:18081", BaseURL: "http://127.0.0.1:18081"},
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Component is the component.Lifecycle that serves the public and
// internal mux on their configured interfaces.
type Component struct {
	config      Config
	publicMux   *http.ServeMux
	internalMux *http.ServeMux

	publicServer   *http.Server
	internalServer *http.Server
}

// New creates an HTTP component serving the given muxes. Other
// components register their handlers on these muxes before Start is called.
func New(config Config, publicMux, internalMux *http.ServeMux) *Component {
	return &Component{
		config:      config,
		publicMux:   publicMux,
		internalMux: internalMux,
	}
}

func (c *Component) RegisterHttpHandlers(_, _ *http.ServeMux) {
	// The HTTP component serves the muxes; it doesn't add handlers of its own.
}

func (c *Component) Start() error {
	publicListener, err := net.Listen("tcp", c.config.PublicInterface.Address)
	if err != nil {
		return errors.Wrap(err, "failed to listen on public interface")
	}
	internalListener, err := net.Listen("tcp", c.config.InternalInterface.Address)
	if err != nil {
		return errors.Wrap(err, "failed to listen on internal interface")
	}

	c.publicServer = &http.Server{Handler: c.publicMux, ReadHeaderTimeout: c.config.ReadHeaderTimeout}
	c.internalServer = &http.Server{Handler: c.internalMux, ReadHeaderTimeout: c.config.ReadHeaderTimeout}

	go func() {
		_ = c.publicServer.Serve(publicListener)
	}()
	go func() {
		_ = c.internalServer.Serve(internalListener)
	}()
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	var errs []error
	if c.publicServer != nil {
		if err := c.publicServer.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to shut down public server"))
		}
	}
	if c.internalServer != nil {
		if err := c.internalServer.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to shut down internal server"))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
