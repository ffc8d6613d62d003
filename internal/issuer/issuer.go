package issuer

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// Issuer mints a new certificate bundle for a domain. Implementations own
// their validation mechanics; a failure here is recoverable for the
// pipeline, which reports it rather than raising.
type Issuer interface {
	Issue(ctx context.Context, domain string) (Bundle, error)
}

// Bundle holds the three PEM artifacts the pipeline persists and imports.
type Bundle struct {
	Cert  []byte
	Key   []byte
	Chain []byte
}

// NotAfter extracts the expiration from the leaf certificate.
func (b Bundle) NotAfter() (time.Time, error) {
	decoded, _ := pem.Decode(b.Cert)
	if decoded == nil {
		return time.Time{}, fmt.Errorf("no PEM data found")
	}
	if decoded.Type != "CERTIFICATE" {
		return time.Time{}, fmt.Errorf("got unexpected block type %q for certificate", decoded.Type)
	}
	cert, err := x509.ParseCertificate(decoded.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse certificate: %w", err)
	}
	return cert.NotAfter, nil
}
