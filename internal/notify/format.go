package notify

import (
	"encoding/json"
	"time"
)

const messageSource = "certflow"

var subjectPrefixes = map[Type]string{
	TypeNoExpiring:          "SSL Certificate Check - No Expiring Certificates",
	TypeCertificatesUpdated: "SSL Certificate Update - Certificates Renewed",
	TypeGenerationFailure:   "SSL Certificate Error - Generation Failed",
	TypeReplacementFailure:  "SSL Certificate Error - Replacement Failed",
	TypeGeneral:             "SSL Certificate Management Notification",
}

// Subject builds the outbound subject line: per-type prefix, the domain,
// and an urgency marker for elevated severities.
func Subject(msg Message) string {
	t := ParseType(msg.NotificationType)

	domain := msg.Domain
	if domain == "" {
		domain = "Multiple Domains"
	}

	subject := subjectPrefixes[t] + " - " + domain
	switch msg.Severity {
	case SeverityHigh:
		subject = "URGENT: " + subject
	case SeverityMedium:
		subject = "WARNING: " + subject
	}
	return subject
}

// Body builds the JSON message body. Every body carries the base fields;
// type-specific fields mirror what downstream subscribers expect.
func Body(msg Message, now time.Time) ([]byte, error) {
	t := ParseType(msg.NotificationType)
	timestamp := now.UTC().Format(time.RFC3339)

	body := map[string]any{
		"notification_type": string(t),
		"timestamp":         timestamp,
		"source":            messageSource,
		"workflow_status":   "completed",
	}

	switch t {
	case TypeNoExpiring:
		body["message"] = defaultString(msg.Message, "No expiring certificates found")
		body["domains_checked"] = msg.DomainsChecked
	case TypeCertificatesUpdated:
		body["message"] = defaultString(msg.Message, "Certificates successfully updated")
		body["certificates_updated"] = msg.CertificatesUpdated
		body["transaction_id"] = msg.TransactionID
		body["artifact_location"] = msg.ArtifactLocation
		body["workflow_status"] = "success"
	case TypeGenerationFailure:
		body["message"] = defaultString(msg.Message, "Certificate generation failed")
		body["error_details"] = defaultString(msg.ErrorDetails, "Unknown error")
		body["transaction_id"] = msg.TransactionID
		body["severity"] = defaultString(msg.Severity, SeverityHigh)
		body["workflow_status"] = "failed"
	case TypeReplacementFailure:
		body["message"] = defaultString(msg.Message, "Certificate replacement failed")
		body["error_details"] = defaultString(msg.ErrorDetails, "Unknown error")
		body["transaction_id"] = msg.TransactionID
		body["severity"] = defaultString(msg.Severity, SeverityHigh)
		body["workflow_status"] = "failed"
	default:
		body["message"] = defaultString(msg.Message, "Certificate management notification")
		body["transaction_id"] = msg.TransactionID
		body["severity"] = defaultString(msg.Severity, SeverityInfo)
	}

	return json.MarshalIndent(body, "", "  ")
}

// Attributes builds the filterable attributes delivered with the message.
func Attributes(msg Message, now time.Time) map[string]string {
	attrs := map[string]string{
		"notification_type": string(ParseType(msg.NotificationType)),
		"domain":            defaultString(msg.Domain, "multiple"),
		"timestamp":         now.UTC().Format(time.RFC3339),
		"source":            messageSource,
	}
	if msg.Severity == SeverityHigh || msg.Severity == SeverityMedium {
		attrs["severity"] = msg.Severity
	}
	return attrs
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
