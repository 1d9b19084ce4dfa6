// Package reader implements the Request Reader: a read-only (except for
// its Parameters, which the Access Checker Chain's mutation phase may
// rewrite) view over an incoming FHIR REST request.
package reader

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RestOperationType classifies a request the way the Audit Synthesizer
// switches on it.
type RestOperationType string

const (
	SearchType RestOperationType = "SEARCH_TYPE"
	SearchSys  RestOperationType = "SEARCH_SYSTEM"
	GetPage    RestOperationType = "GET_PAGE"
	Read       RestOperationType = "READ"
	VRead      RestOperationType = "VREAD"
	Create     RestOperationType = "CREATE"
	Update     RestOperationType = "UPDATE"
	Delete     RestOperationType = "DELETE"
	Other      RestOperationType = "OTHER"
)

// Reader is a read-only view over an *http.Request, plus the mutable
// Parameters map the pre-process phase is allowed to rewrite.
type Reader struct {
	method         string
	resourceName   string
	resourceID     string
	path           string
	url            *url.URL
	parameters     url.Values
	requestID      string
	remoteAddr     string
	fhirServerBase string
	header         http.Header
	start          time.Time

	body     []byte
	bodyRead bool
	original *http.Request
}

// New builds a Reader over req. fhirServerBase is the configured upstream
// FHIR base URL, used only for logging/audit entities (the reader reads
// req's own path, which is always relative to the gateway's mount point).
func New(req *http.Request, fhirServerBase string) *Reader {
	trimmed := strings.Trim(req.URL.Path, "/")
	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	var resourceName, resourceID string
	if len(segments) > 0 {
		resourceName = segments[0]
	}
	if len(segments) >= 2 {
		resourceID = segments[1]
	}

	requestID := req.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &Reader{
		method:         req.Method,
		resourceName:   resourceName,
		resourceID:     resourceID,
		path:           req.URL.Path,
		url:            req.URL,
		parameters:     cloneValues(req.URL.Query()),
		requestID:      requestID,
		remoteAddr:     req.RemoteAddr,
		fhirServerBase: fhirServerBase,
		header:         req.Header,
		start:          time.Now(),
		original:       req,
	}
}

func cloneValues(in url.Values) url.Values {
	out := make(url.Values, len(in))
	for k, v := range in {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func (r *Reader) Method() string           { return r.method }
func (r *Reader) ResourceName() string     { return r.resourceName }
func (r *Reader) ResourceID() string       { return r.resourceID }
func (r *Reader) Path() string             { return r.path }
func (r *Reader) URL() *url.URL            { return r.url }
func (r *Reader) RequestID() string        { return r.requestID }
func (r *Reader) RemoteAddr() string       { return r.remoteAddr }
func (r *Reader) FHIRServerBase() string   { return r.fhirServerBase }
func (r *Reader) Start() time.Time         { return r.start }
func (r *Reader) Header(name string) string { return r.header.Get(name) }

// Parameters returns the mutable parameter map. Callers in the
// pre-process phase may add to it in place (e.g. the sync-scope rewriter
// appending to "_tag").
func (r *Reader) Parameters() url.Values {
	return r.parameters
}

// Body returns the request body, reading and buffering it on first call
// so it can be read more than once (e.g. bundle-entry iteration and
// forwarding both need it).
func (r *Reader) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}
	if r.original.Body == nil {
		r.bodyRead = true
		return nil, nil
	}
	data, err := io.ReadAll(r.original.Body)
	if err != nil {
		return nil, err
	}
	r.body = data
	r.bodyRead = true
	return data, nil
}

// IsSyncShaped reports whether this is a GET list/search on a resource
// collection: method GET, non-empty resource name, and exactly one
// non-empty path segment (no instance id, no sub-resource).
func (r *Reader) IsSyncShaped() bool {
	if r.method != http.MethodGet {
		return false
	}
	if r.resourceName == "" {
		return false
	}
	trimmed := strings.Trim(r.path, "/")
	segments := strings.Split(trimmed, "/")
	return len(segments) == 1
}

// OperationType classifies the request per spec, consulting both the
// path shape and the _getpages continuation parameter.
func (r *Reader) OperationType() RestOperationType {
	if r.parameters.Get("_getpages") != "" {
		return GetPage
	}

	trimmed := strings.Trim(r.path, "/")
	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	switch len(segments) {
	case 0:
		if r.method == http.MethodPost {
			return Other // bundle submission, handled by the Access Checker, not audited as a single op
		}
		if r.method == http.MethodGet {
			return SearchSys
		}
	case 1:
		switch r.method {
		case http.MethodGet:
			return SearchType
		case http.MethodPost:
			return Create
		}
	case 2:
		switch r.method {
		case http.MethodGet:
			return Read
		case http.MethodPut:
			return Update
		case http.MethodDelete:
			return Delete
		}
	case 4:
		if segments[2] == "_history" && r.method == http.MethodGet {
			return VRead
		}
	}
	return Other
}
