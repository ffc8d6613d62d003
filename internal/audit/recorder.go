package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"certflow/internal/artifact"
)

// Recorder writes immutable per-transaction records to the artifact store.
// It is append-only from the trail's perspective and uses the storage layer
// for persistence so tests can swap sinks easily. Writes complete (or fail)
// before the surrounding step returns; there is no asynchronous detachment.
type Recorder struct {
	store artifact.Store
}

func NewRecorder(store artifact.Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists one JSON record under the transaction's deterministic
// path. Re-recording the same name for a transaction overwrites the prior
// record.
func (r *Recorder) Record(ctx context.Context, transactionID, name string, payload any) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit record %s: %w", name, err)
	}
	key := Path(transactionID, name)
	if err := r.store.Put(ctx, key, body, nil); err != nil {
		return fmt.Errorf("store audit record %s: %w", key, err)
	}
	return nil
}

// Path derives the artifact key for a transaction record.
func Path(transactionID, name string) string {
	return "transactions/" + transactionID + "/" + name
}
