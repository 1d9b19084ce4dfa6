// Package gateway wires the Request Reader, Access Checker Chain,
// Sync-Scope Decision, Practitioner Graph Resolver and Audit Synthesizer
// into the single HTTP handler that authorizes and forwards FHIR
// requests to the upstream server.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/nuts-foundation/fhir-access-gateway/component"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/access"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/appconfig"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/audit"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/practitioner"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/reader"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/syncscope"
	"github.com/nuts-foundation/fhir-access-gateway/component/tracing"
	"github.com/nuts-foundation/fhir-access-gateway/lib/httpauth"
	"github.com/nuts-foundation/fhir-access-gateway/lib/logging"
	"github.com/nuts-foundation/fhir-access-gateway/lib/tlsconfig"
	"github.com/pkg/errors"
)

var _ component.Lifecycle = &Component{}

// Component is the top-level access-decision pipeline: it registers a
// catch-all HTTP handler that implements spec.md §4.0, plus the
// /_supervised handler.
type Component struct {
	config  Config
	target  *url.URL
	proxy   *httputil.ReverseProxy

	checker     access.Checker
	synthesizer *audit.Synthesizer
	resolver    *practitioner.Resolver
}

// New builds a gateway component. The upstream FHIR client (used by the
// Practitioner Graph Resolver, Application Configuration loader and Audit
// Synthesizer) and the reverse proxy (used to forward the actual request
// body) share one traced transport. Only the FHIR client's *http.Client
// carries SocketTimeout; the reverse proxy uses the transport directly.
func New(config Config) (*Component, error) {
	target, err := url.Parse(config.ProxyTo)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse PROXY_TO")
	}

	clientCert, err := tlsconfig.LoadClientCertificate(config.UpstreamClientCert)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load upstream client certificate")
	}
	transport := &http.Transport{
		MaxConnsPerHost:     config.MaxConnectionPerRoute,
		MaxIdleConnsPerHost: config.MaxConnectionPerRoute,
		MaxIdleConns:        config.MaxConnectionTotal,
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
	}
	if clientCert != nil {
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{*clientCert}}
	}

	var tracedTransport http.RoundTripper = tracing.WrapTransport(transport)
	if config.UpstreamAuth.IsConfigured() {
		tokenProvider, err := httpauth.NewOAuth2TokenProvider(config.UpstreamAuth, 30*time.Second)
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure upstream OAuth2 authentication")
		}
		tracedTransport = httpauth.WrapTransport(tracedTransport, tokenProvider.TokenFunc())
	}

	httpClient := &http.Client{
		Timeout:   config.SocketTimeout,
		Transport: tracedTransport,
	}

	fhirClient := fhirclient.New(target, httpClient, nil)

	resolver := practitioner.New(fhirClient, config.Practitioner)
	appConfigLoader := appconfig.New(fhirClient, config.AppConfig)
	syncDecider := syncscope.NewDecider(config.SystemPrefixTags)

	checker := &access.PermissionChecker{
		Resolver:  resolver,
		AppConfig: appConfigLoader,
		SyncScope: syncDecider,
		DevMode:   config.DevMode,
	}

	synthesizer := audit.New(fhirClient, config.Audit)

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = httpClient.Transport

	return &Component{
		config:      config,
		target:      target,
		proxy:       proxy,
		checker:     checker,
		synthesizer: synthesizer,
		resolver:    resolver,
	}, nil
}

func (c *Component) RegisterHttpHandlers(publicMux, _ *http.ServeMux) {
	publicMux.Handle("/_supervised", tracing.WrapHandler("gateway-supervised", http.HandlerFunc(c.handleSupervised)))
	publicMux.Handle("/", tracing.WrapHandler("gateway", http.HandlerFunc(c.handle)))
}

func (c *Component) Start() error { return nil }

func (c *Component) Stop(_ context.Context) error { return nil }

// handle implements spec.md §4.0's pipeline: authenticate, build the
// Reader, run the Access Checker Chain, forward on grant, synthesize and
// emit an audit event, swallowing any audit failure.
func (c *Component) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rd := reader.New(r, c.config.ProxyTo)

	decision, err := c.checker.Check(ctx, rd, principal)
	if err != nil {
		slog.ErrorContext(ctx, "access check failed", logging.Error(err), logging.Principal(principal.Subject), logging.RequestID(rd.RequestID()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !decision.Granted {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if decision.Mutation != nil {
		for key, values := range decision.Mutation.AddedParameters {
			rd.Parameters()[key] = values
		}
	}
	r.URL.RawQuery = rd.Parameters().Encode()

	// The Access Checker Chain may already have consumed r.Body while
	// evaluating a bundle submission; restore it from the Reader's buffer
	// so the forwarded request carries the original body regardless.
	body, err := rd.Body()
	if err != nil {
		slog.ErrorContext(ctx, "failed to read request body", logging.Error(err), logging.RequestID(rd.RequestID()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
	}

	recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	c.proxy.ServeHTTP(recorder, r)

	if recorder.statusCode < 200 || recorder.statusCode >= 300 {
		return
	}

	user := audit.UserReference{
		Reference: "Practitioner/" + principal.Subject,
		Display:   principal.DisplayName,
	}
	if err := c.synthesizer.Emit(ctx, rd, recorder.body, user); err != nil {
		slog.ErrorContext(ctx, "failed to emit audit event", logging.Error(err), logging.RequestID(rd.RequestID()))
	}
}

// handleSupervised implements the Practitioner Graph Resolver's Supervisor
// expansion (spec.md §4.1): it resolves the requesting principal's own
// Details, then the union of practitioners attributed to their location
// hierarchy, and returns their FHIR ids as a JSON array. Only principals
// holding MANAGE_PRACTITIONER may call it; it performs no upstream
// forwarding and triggers no audit event of its own.
func (c *Component) handleSupervised(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !principal.HasRole("MANAGE_PRACTITIONER") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	details, err := c.resolver.Resolve(ctx, principal.Subject)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve practitioner details", logging.Error(err), logging.Principal(principal.Subject))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	supervised, err := c.resolver.ResolveSupervised(ctx, details)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve supervised practitioners", logging.Error(err), logging.Principal(principal.Subject))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ids := make([]string, 0, len(supervised))
	for _, d := range supervised {
		ids = append(ids, d.PractitionerID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ids); err != nil {
		slog.ErrorContext(ctx, "failed to encode supervised practitioners response", logging.Error(err))
	}
}

// responseRecorder buffers the proxied response body so it can be handed
// to the Audit Synthesizer after it has already been written to the client.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (rr *responseRecorder) WriteHeader(statusCode int) {
	rr.statusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.body = append(rr.body, b...)
	return rr.ResponseWriter.Write(b)
}
