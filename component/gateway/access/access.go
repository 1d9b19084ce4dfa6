// Package access implements the Access Checker Chain: pluggable
// authorization checks that compose role-based decisions with the
// sync-scope rewriter, yielding a grant/deny verdict plus optional
// request mutation and post-processing.
package access

import (
	"context"

	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/reader"
	"github.com/pkg/errors"
)

// ErrUnauthenticated is returned when the bearer token is missing or
// lacks a required claim. Callers map this to 401.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrConfiguration is returned when a principal's application has no
// usable configuration (missing Composition/Binary/sync strategy).
// Callers map this to 500; it is never an authorization denial.
var ErrConfiguration = errors.New("configuration error")

// Principal is derived from decoded bearer-token claims.
type Principal struct {
	Subject           string
	PreferredUsername string
	DisplayName       string
	Roles             map[string]struct{}
	ApplicationID     string
}

// HasRole reports whether role is an exact member of the principal's role set.
func (p Principal) HasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}

// Mutation describes parameters the pre-process phase adds to the
// forwarded request.
type Mutation struct {
	AddedParameters map[string][]string
}

// PostProcessFunc optionally rewrites a successful response body before
// it reaches the client. Returning nil leaves the body unchanged.
type PostProcessFunc func(rd *reader.Reader, responseBody []byte) ([]byte, error)

// Decision is the verdict the Access Checker Chain yields for one request.
type Decision struct {
	Granted     bool
	Mutation    *Mutation
	PostProcess PostProcessFunc
}

// Checker is the capability every access check implements.
type Checker interface {
	Check(ctx context.Context, rd *reader.Reader, principal Principal) (Decision, error)
}

type noOpChecker struct {
	granted bool
}

func (c noOpChecker) Check(_ context.Context, _ *reader.Reader, _ Principal) (Decision, error) {
	return Decision{Granted: c.granted}, nil
}

// NoOpGrant always grants, with no mutation and no post-processing.
var NoOpGrant Checker = noOpChecker{granted: true}

// NoOpDeny always denies.
var NoOpDeny Checker = noOpChecker{granted: false}
