package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"certflow/internal/notify"
)

// Transaction correlates one end-to-end run of the pipeline for one domain.
// It is created at Check entry and referenced, never mutated, downstream.
type Transaction struct {
	ID     string
	Domain string
}

// NewTransaction allocates a fresh correlation id.
func NewTransaction(domain string) Transaction {
	return Transaction{ID: uuid.New().String(), Domain: domain}
}

// Branch reasons surfaced on check results.
const (
	ReasonNotFound     = "No certificate found"
	ReasonExpiringSoon = "Certificate expired or expiring soon"
)

// CheckResult is the outcome of the entry step. Expired=true means the
// pipeline needs to act, whether the certificate is missing or expiring.
type CheckResult struct {
	Expired           bool   `json:"expired"`
	Domain            string `json:"domain"`
	TransactionID     string `json:"transaction_id"`
	CertificateHandle string `json:"certificate_handle,omitempty"`
	ExpirationDate    string `json:"expiration_date,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// GenerateResult reports a generation attempt. Issuer failures are
// recovered here: Success=false with the raw error text, no error raised.
type GenerateResult struct {
	Success          bool   `json:"success"`
	Domain           string `json:"domain"`
	TransactionID    string `json:"transaction_id"`
	ExpirationDate   string `json:"expiration_date,omitempty"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ReplaceResult reports a replacement. A failed deletion of the old
// certificate is non-fatal: Success stays true with OldDeleted=false and
// DeletionError populated.
type ReplaceResult struct {
	Success        bool   `json:"success"`
	Domain         string `json:"domain"`
	TransactionID  string `json:"transaction_id"`
	NewHandle      string `json:"new_certificate_handle,omitempty"`
	OldHandle      string `json:"old_certificate_handle,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	OldDeleted     bool   `json:"old_certificate_deleted"`
	DeletionError  string `json:"deletion_error,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunResult aggregates one full pass for a domain.
type RunResult struct {
	Check        CheckResult    `json:"check"`
	Generated    *GenerateResult `json:"generated,omitempty"`
	Replaced     *ReplaceResult  `json:"replaced,omitempty"`
	Notification *notify.Result  `json:"notification,omitempty"`
}

// Certificate artifact file names under certificates/{domain}/.
const (
	fileCert  = "cert.pem"
	fileKey   = "privkey.pem"
	fileChain = "chain.pem"
)

func certificatePath(domain, file string) string {
	return "certificates/" + domain + "/" + file
}

func certificateLocation(domain string) string {
	return "certificates/" + domain + "/"
}

func summaryPath(domain, transactionID string) string {
	return "summary/" + domain + "/replacement_" + transactionID + ".json"
}

// inventoryPath keys per-handle inventory entries. Superseding entries do
// not delete prior ones: active and deleted entries live at distinct keys.
func inventoryPath(domain, handle string, deleted bool) string {
	suffix := ".json"
	if deleted {
		suffix = "_deleted.json"
	}
	return "inventory/certificates/" + domain + "_" + handleSuffix(handle) + suffix
}

func handleSuffix(handle string) string {
	if handle == "" {
		return "unknown"
	}
	if i := strings.LastIndex(handle, "/"); i >= 0 {
		return handle[i+1:]
	}
	return handle
}
