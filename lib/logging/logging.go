// Package logging provides small slog.Attr constructors shared across
// components, so every log line describing the same kind of thing
// (a component, an error, a principal) looks the same.
package logging

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr carrying err under the conventional "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Component returns a slog.Attr identifying a component by its Go type.
func Component(c any) slog.Attr {
	return slog.String("component", fmt.Sprintf("%T", c))
}

// FHIRServer returns a slog.Attr carrying the upstream FHIR base URL.
func FHIRServer(base string) slog.Attr {
	return slog.String("fhir_server", base)
}

// Principal returns a slog.Attr identifying the acting principal by subject.
func Principal(subject string) slog.Attr {
	return slog.String("principal", subject)
}

// RequestID returns a slog.Attr carrying the inbound X-Request-Id.
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}
