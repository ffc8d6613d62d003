package notify

import "encoding/json"

// Type is the closed set of notification classifications. Unknown inputs
// fold to TypeGeneral.
type Type string

const (
	TypeNoExpiring          Type = "no_expiring_certificates"
	TypeCertificatesUpdated Type = "certificates_updated"
	TypeGenerationFailure   Type = "generation_failure"
	TypeReplacementFailure  Type = "replacement_failure"
	TypeGeneral             Type = "general"
)

// ParseType maps a wire value onto the closed enum.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeNoExpiring, TypeCertificatesUpdated, TypeGenerationFailure, TypeReplacementFailure:
		return Type(s)
	default:
		return TypeGeneral
	}
}

// Processing status codes returned by the router.
const (
	StatusDisabled  = "DISABLED"
	StatusProcessed = "PROCESSED"
	StatusError     = "ERROR"
	StatusSent      = "SENT"
	StatusFailed    = "SEND_FAILED"
)

// Severity levels carried on failure notifications.
const (
	SeverityInfo   = "info"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Message is the direct-invocation notification payload.
type Message struct {
	NotificationType    string              `json:"notification_type"`
	Message             string              `json:"message,omitempty"`
	Severity            string              `json:"severity,omitempty"`
	Domain              string              `json:"domain,omitempty"`
	TransactionID       string              `json:"transaction_id,omitempty"`
	ErrorDetails        string              `json:"error_details,omitempty"`
	DomainsChecked      []DomainCheck       `json:"domains_checked,omitempty"`
	CertificatesUpdated []CertificateUpdate `json:"certificates_updated,omitempty"`
	ArtifactLocation    string              `json:"artifact_location,omitempty"`
}

// DomainCheck names one domain covered by a no-expiring notification.
type DomainCheck struct {
	Domain string `json:"domain"`
}

// CertificateUpdate describes one renewed certificate.
type CertificateUpdate struct {
	Domain         string `json:"domain"`
	NewHandle      string `json:"new_certificate_handle"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	OldDeleted     bool   `json:"old_certificate_deleted"`
	DeletionError  string `json:"deletion_error,omitempty"`
}

// FanoutEventSource is the reserved event-source tag stamped on records
// delivered by the fan-out system.
const FanoutEventSource = "pubsub"

// Envelope is the fan-out batch shape: each record wraps one JSON message.
type Envelope struct {
	Records []Record `json:"records"`
}

// Record is one fan-out delivery.
type Record struct {
	EventSource string `json:"event_source"`
	Message     string `json:"message"`
}

// IsFanout reports whether the raw payload is a fan-out batch: it exposes a
// records collection whose first element carries the reserved tag.
func IsFanout(raw json.RawMessage) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return len(env.Records) > 0 && env.Records[0].EventSource == FanoutEventSource
}

// Result reports the outcome of routing one payload. Batch processing
// returns one nested result per record, in input order.
type Result struct {
	Status           string   `json:"status"`
	NotificationType Type     `json:"notification_type,omitempty"`
	MessageID        string   `json:"message_id,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	Error            string   `json:"error,omitempty"`
	Results          []Result `json:"results,omitempty"`
}
