package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// InventoryEntry is the per-domain, per-handle record written whenever
// Replace changes CA state. Entries are append-only history keyed by
// handle; a deleted entry supersedes but does not remove the active one.
type InventoryEntry struct {
	CertificateHandle string `json:"certificate_handle"`
	Domain            string `json:"domain"`
	ExpirationDate    string `json:"expiration_date,omitempty"`
	ImportDate        string `json:"import_date,omitempty"`
	DeletionDate      string `json:"deletion_date,omitempty"`
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	ReplacedBy        string `json:"replaced_by,omitempty"`
}

// Inventory statuses.
const (
	InventoryActive  = "active"
	InventoryDeleted = "deleted"
)

func (s *Service) writeInventoryEntry(ctx context.Context, entry InventoryEntry, now time.Time) error {
	deleted := entry.Status == InventoryDeleted
	if deleted {
		entry.DeletionDate = now.UTC().Format(time.RFC3339)
	} else {
		entry.ImportDate = now.UTC().Format(time.RFC3339)
	}

	body, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal inventory entry: %w", err)
	}

	key := inventoryPath(entry.Domain, entry.CertificateHandle, deleted)
	if err := s.store.Put(ctx, key, body, nil); err != nil {
		return fmt.Errorf("store inventory entry %s: %w", key, err)
	}
	return nil
}

// replacementSummary is the per-domain summary written after a successful
// replacement, for reporting tooling that doesn't walk transactions.
type replacementSummary struct {
	TransactionID   string `json:"transaction_id"`
	Domain          string `json:"domain"`
	ImportTimestamp string `json:"import_timestamp"`
	OldHandle       string `json:"old_certificate_handle,omitempty"`
	NewHandle       string `json:"new_certificate_handle"`
	ExpirationDate  string `json:"expiration_date,omitempty"`
	CertificatePath string `json:"certificate_path"`
	TransactionPath string `json:"transaction_path"`
}

func (s *Service) writeReplacementSummary(ctx context.Context, summary replacementSummary) error {
	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal replacement summary: %w", err)
	}

	key := summaryPath(summary.Domain, summary.TransactionID)
	if err := s.store.Put(ctx, key, body, nil); err != nil {
		return fmt.Errorf("store replacement summary %s: %w", key, err)
	}
	return nil
}
