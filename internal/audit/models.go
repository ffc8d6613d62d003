package audit

// Record names. Each transaction holds at most one record per name; writing
// the same name again overwrites it, so the trail is one record per
// (transaction, step, outcome-class), not a log of retries.
const (
	RecordCheckMetadata       = "check_metadata"
	RecordCheckError          = "check_error"
	RecordGenerationMetadata  = "generation_metadata"
	RecordGenerationError     = "generation_error"
	RecordReplacementMetadata = "replacement_metadata"
	RecordReplacementError    = "replacement_error"
)

// CheckRecord captures the outcome of a certificate check, including the
// satisfied case.
type CheckRecord struct {
	TransactionID     string `json:"transaction_id"`
	Domain            string `json:"domain"`
	CheckTimestamp    string `json:"check_timestamp"`
	Action            string `json:"action"`
	CertificateHandle string `json:"certificate_handle,omitempty"`
	CertificateStatus string `json:"certificate_status"`
	ExpirationDate    string `json:"expiration_date,omitempty"`
	IsExpired         bool   `json:"is_expired"`
	IsExpiringSoon    bool   `json:"is_expiring_soon"`
}

// GenerationRecord captures a generation attempt, successful or not.
type GenerationRecord struct {
	TransactionID       string `json:"transaction_id"`
	Domain              string `json:"domain"`
	GenerationTimestamp string `json:"generation_timestamp"`
	OldHandle           string `json:"old_certificate_handle,omitempty"`
	Action              string `json:"action"`
	Success             bool   `json:"success"`
	ExpirationDate      string `json:"expiration_date,omitempty"`
	Error               string `json:"error,omitempty"`
}

// ReplacementRecord captures a replacement attempt, successful or not.
type ReplacementRecord struct {
	TransactionID        string `json:"transaction_id"`
	Domain               string `json:"domain"`
	ReplacementTimestamp string `json:"replacement_timestamp"`
	OldHandle            string `json:"old_certificate_handle,omitempty"`
	NewHandle            string `json:"new_certificate_handle,omitempty"`
	ExpirationDate       string `json:"expiration_date,omitempty"`
	Action               string `json:"action"`
	Success              bool   `json:"success"`
	Error                string `json:"error,omitempty"`
}

// ErrorRecord captures a terminal step failure before the error propagates.
type ErrorRecord struct {
	TransactionID  string `json:"transaction_id"`
	Domain         string `json:"domain"`
	ErrorTimestamp string `json:"error_timestamp"`
	ErrorMessage   string `json:"error_message"`
	Action         string `json:"action"`
}

// Actions stamped on records.
const (
	ActionCheck       = "certificate_check"
	ActionCheckError  = "certificate_check_error"
	ActionGeneration  = "certificate_generation"
	ActionReplacement = "certificate_replacement"
)
