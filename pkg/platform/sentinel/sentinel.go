package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Clients and stores return these
// (optionally wrapped) so the pipeline can branch on the kind of failure
// instead of inspecting collaborator-specific error types.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: resource does not exist (certificate, artifact, topic)
// - ErrInvalidInput: collaborator rejected the supplied parameters
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
)
