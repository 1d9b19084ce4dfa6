package gateway

import (
	"time"

	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/appconfig"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/audit"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/practitioner"
	"github.com/nuts-foundation/fhir-access-gateway/lib/httpauth"
	"github.com/nuts-foundation/fhir-access-gateway/lib/tlsconfig"
)

// Config configures the gateway component: the upstream FHIR server it
// proxies to, the connection pool it forwards through, and its
// collaborators' own configuration.
type Config struct {
	// ProxyTo is the upstream FHIR base URL (spec env PROXY_TO). Required.
	ProxyTo string `koanf:"proxyto"`

	// SocketTimeout bounds how long a single structured FHIR call (resolver,
	// application configuration loader, audit sink) may take. Proxied
	// forwards share only the transport and are not bounded by it.
	SocketTimeout time.Duration `koanf:"sockettimeout"`
	// ConnectionRequestTimeout is read from configuration but is not applied
	// to the upstream transport: requests wait for a free connection without
	// a separate limit.
	ConnectionRequestTimeout time.Duration `koanf:"connectionrequesttimeout"`
	// ConnectTimeout bounds the TCP handshake to the upstream server.
	ConnectTimeout time.Duration `koanf:"connecttimeout"`
	// MaxConnectionTotal bounds the pool's idle connections across all
	// hosts; active connections are not counted against it.
	MaxConnectionTotal int `koanf:"maxconnectiontotal"`
	// MaxConnectionPerRoute bounds both the total and the idle connections
	// per upstream host.
	MaxConnectionPerRoute int `koanf:"maxconnectionperroute"`

	// DevMode relaxes bundle role enforcement (spec env DEV_MODE).
	DevMode bool `koanf:"devmode"`
	// SystemPrefixTags, when true, encodes rewritten _tag values as
	// "system|code" instead of bare identifiers (spec.md §9 open question).
	SystemPrefixTags bool `koanf:"systemprefixtags"`

	// UpstreamAuth, when configured, obtains an OAuth2 client-credentials
	// bearer token that is attached to every upstream request (structured
	// FHIR calls and proxied forwards alike).
	UpstreamAuth httpauth.OAuth2Config `koanf:"upstreamauth"`
	// UpstreamClientCert, when configured, presents a PKCS#12 client
	// certificate to an upstream FHIR server sitting behind mTLS.
	UpstreamClientCert tlsconfig.ClientCertConfig `koanf:"upstreamclientcert"`

	Practitioner practitioner.Config `koanf:"practitioner"`
	AppConfig    appconfig.Config    `koanf:"appconfig"`
	Audit        audit.Config        `koanf:"audit"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		SocketTimeout:            30 * time.Second,
		ConnectionRequestTimeout: 5 * time.Second,
		ConnectTimeout:           5 * time.Second,
		MaxConnectionTotal:       100,
		MaxConnectionPerRoute:    20,
		Practitioner:             practitioner.DefaultConfig(),
		AppConfig:                appconfig.DefaultConfig(),
		Audit:                    audit.Config{},
	}
}
