// Package appconfig resolves the Application Configuration: given an
// applicationId claim, it finds the Composition that documents that
// application's configuration, follows its Binary attachment, and
// decodes the sync strategy JSON payload.
package appconfig

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/syncscope"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// ErrNotConfigured is returned when no Composition exists for an
// applicationId, or when its payload names no legal sync strategy. This
// is a fatal configuration error (spec.md §7), not an authorization
// denial: callers should map it to a 500, not a 403.
var ErrNotConfigured = errors.New("no application configuration found")

// Client is the slice of fhirclient.Client the loader needs.
type Client interface {
	SearchWithContext(ctx context.Context, resourceType string, params url.Values, result any, opts ...fhirclient.Option) error
	ReadWithContext(ctx context.Context, path string, result any, opts ...fhirclient.Option) error
}

// Config configures the loader's cache.
type Config struct {
	// CacheTTL bounds how long a resolved strategy stays cached per
	// applicationId. Defaults to 5 minutes.
	CacheTTL time.Duration `koanf:"cachettl"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{CacheTTL: 5 * time.Minute}
}

type payload struct {
	SyncStrategy string `json:"syncStrategy"`
}

// Loader resolves and caches the sync strategy per applicationId.
type Loader struct {
	client Client
	cache  *cache.Cache
}

// New creates a Loader backed by the given upstream FHIR client.
func New(client Client, config Config) *Loader {
	return &Loader{
		client: client,
		cache:  cache.New(config.CacheTTL, config.CacheTTL*2),
	}
}

// Strategy resolves applicationId's configured sync strategy, following
// Composition -> Binary -> base64 JSON payload -> syncStrategy. Returns
// ErrNotConfigured if any step is missing or the strategy name is illegal.
func (l *Loader) Strategy(ctx context.Context, applicationID string) (syncscope.Strategy, error) {
	if cached, ok := l.cache.Get(applicationID); ok {
		return cached.(syncscope.Strategy), nil
	}

	strategy, err := l.resolve(ctx, applicationID)
	if err != nil {
		return "", err
	}

	l.cache.SetDefault(applicationID, strategy)
	return strategy, nil
}

func (l *Loader) resolve(ctx context.Context, applicationID string) (syncscope.Strategy, error) {
	var bundle fhir.Bundle
	params := url.Values{"identifier": {applicationID}}
	if err := l.client.SearchWithContext(ctx, "Composition", params, &bundle); err != nil {
		return "", errors.Wrap(err, "failed to search for application configuration Composition")
	}
	if len(bundle.Entry) == 0 || bundle.Entry[0].Resource == nil {
		return "", errors.Wrapf(ErrNotConfigured, "no Composition for applicationId %q", applicationID)
	}

	var composition fhir.Composition
	if err := json.Unmarshal(bundle.Entry[0].Resource, &composition); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal application configuration Composition")
	}

	binaryRef, ok := firstBinaryReference(composition)
	if !ok {
		return "", errors.Wrapf(ErrNotConfigured, "Composition for applicationId %q has no Binary reference", applicationID)
	}

	var binary fhir.Binary
	if err := l.client.ReadWithContext(ctx, binaryRef, &binary); err != nil {
		return "", errors.Wrap(err, "failed to read application configuration Binary")
	}
	if binary.Data == nil {
		return "", errors.Wrapf(ErrNotConfigured, "Binary %q has no data", binaryRef)
	}

	raw, err := base64.StdEncoding.DecodeString(*binary.Data)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode application configuration Binary payload")
	}

	var decoded payload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal application configuration JSON payload")
	}

	strategy, ok := syncscope.ParseStrategy(decoded.SyncStrategy)
	if !ok {
		return "", errors.Wrapf(ErrNotConfigured, "illegal sync strategy %q for applicationId %q", decoded.SyncStrategy, applicationID)
	}
	return strategy, nil
}

func firstBinaryReference(composition fhir.Composition) (string, bool) {
	for _, section := range composition.Section {
		for _, entry := range section.Entry {
			if entry.Reference != nil && len(*entry.Reference) > 0 {
				return *entry.Reference, true
			}
		}
	}
	return "", false
}

// ErrConfigurationContext formats a configuration error for logging.
func ErrConfigurationContext(applicationID string, err error) error {
	return fmt.Errorf("application configuration for %q: %w", applicationID, err)
}
