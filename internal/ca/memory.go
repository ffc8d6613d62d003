package ca

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"certflow/pkg/platform/sentinel"
)

// InMemoryClient is a CA for local mode and tests. It intentionally favors
// clarity over performance.
type InMemoryClient struct {
	mu    sync.RWMutex
	certs map[string]entry // keyed by handle
}

type entry struct {
	descriptor Descriptor
	domain     string
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{certs: make(map[string]entry)}
}

func (c *InMemoryClient) FindByDomain(_ context.Context, domain string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.certs {
		if e.domain == domain {
			return e.descriptor, nil
		}
	}
	return Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound)
}

// Import parses the certificate PEM to recover its subject and expiration,
// assigns a fresh handle, and records the certificate as issued.
func (c *InMemoryClient) Import(_ context.Context, cert, key, chain []byte) (string, error) {
	if len(cert) == 0 || len(key) == 0 {
		return "", fmt.Errorf("certificate and private key are required: %w", sentinel.ErrInvalidInput)
	}

	parsed, err := parseCertificatePEM(cert)
	if err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}

	domain := parsed.Subject.CommonName
	if len(parsed.DNSNames) > 0 {
		domain = parsed.DNSNames[0]
	}

	handle := "cert/" + uuid.New().String()
	notAfter := parsed.NotAfter

	c.mu.Lock()
	defer c.mu.Unlock()
	c.certs[handle] = entry{
		descriptor: Descriptor{Handle: handle, Status: StatusIssued, NotAfter: &notAfter},
		domain:     domain,
	}
	return handle, nil
}

func (c *InMemoryClient) Delete(_ context.Context, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.certs[handle]; !ok {
		return fmt.Errorf("certificate %s: %w", handle, sentinel.ErrNotFound)
	}
	delete(c.certs, handle)
	return nil
}

func parseCertificatePEM(b []byte) (*x509.Certificate, error) {
	decoded, _ := pem.Decode(b)
	if decoded == nil {
		return nil, fmt.Errorf("no PEM data found")
	}
	if decoded.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("got unexpected block type %q for certificate", decoded.Type)
	}
	return x509.ParseCertificate(decoded.Bytes)
}
