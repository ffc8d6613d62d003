package ca

import (
	"context"
	"time"
)

// Status of a certificate as reported by the CA.
type Status string

const (
	StatusIssued   Status = "ISSUED"
	StatusPending  Status = "PENDING"
	StatusNotFound Status = "NOT_FOUND"
)

// Descriptor identifies a certificate held by the CA. NotAfter is nil when
// the CA has no expiration to report (e.g. a pending certificate).
type Descriptor struct {
	Handle   string
	Status   Status
	NotAfter *time.Time
}

// Client is the CA contract the pipeline consumes. FindByDomain returns
// sentinel.ErrNotFound when no certificate covers the domain; any other
// error is a collaborator failure the caller must surface.
type Client interface {
	FindByDomain(ctx context.Context, domain string) (Descriptor, error)
	Import(ctx context.Context, cert, key, chain []byte) (string, error)
	Delete(ctx context.Context, handle string) error
}
