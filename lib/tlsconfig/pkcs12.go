// Package tlsconfig loads optional upstream mutual-TLS client
// certificates, for deployments where the FHIR store sits behind an
// mTLS-terminating gateway.
package tlsconfig

import (
	"crypto/tls"
	"os"

	"github.com/pkg/errors"
	"software.sslmate.com/src/go-pkcs12"
)

// ClientCertConfig configures an optional PKCS#12 client certificate
// presented to the upstream FHIR server.
type ClientCertConfig struct {
	// P12Path is the filesystem path to a PKCS#12 bundle. Empty disables
	// client-certificate authentication.
	P12Path string `koanf:"p12path"`
	// Password decrypts the PKCS#12 bundle.
	Password string `koanf:"password"`
}

// LoadClientCertificate decodes the configured PKCS#12 bundle into a
// tls.Certificate suitable for tls.Config.Certificates. It returns
// (nil, nil) if no certificate is configured.
func LoadClientCertificate(config ClientCertConfig) (*tls.Certificate, error) {
	if config.P12Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(config.P12Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read client certificate bundle")
	}
	key, cert, err := pkcs12.Decode(data, config.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode PKCS#12 client certificate bundle")
	}
	return &tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
