package artifact

import "context"

// Object is an opaque blob with flat string metadata.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// Store persists opaque blobs keyed by deterministic paths. Writes at the
// same key overwrite; distinct transaction ids produce non-colliding paths,
// which is the only concurrency control the pipeline relies on.
//
// Stores are interface-driven to keep the pipeline testable and to allow
// swapping in-memory, Redis, or Postgres persistence without rewiring
// business code.
type Store interface {
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) (Object, error)
	Exists(ctx context.Context, key string) (bool, error)
}
