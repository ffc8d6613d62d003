package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certflow/internal/platform/metrics"
	"certflow/pkg/platform/sentinel"
)

// Router classifies inbound notification payloads and dispatches them. Two
// shapes arrive here: a fan-out batch of delivered records, and a direct
// invocation from the pipeline asking for a message to be published.
//
// The router never returns an error: every failure is folded into the
// Result so the surrounding workflow keeps moving.
type Router struct {
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRouter builds a Router. A nil sender means no delivery channel is
// configured: direct invocations become a disabled-status no-op.
func NewRouter(sender Sender, log *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{sender: sender, log: log, metrics: m, now: time.Now}
}

// Process routes one payload.
func (r *Router) Process(ctx context.Context, payload json.RawMessage) Result {
	if r.sender == nil {
		r.log.Info("notifications disabled, no destination configured")
		return Result{Status: StatusDisabled}
	}

	if IsFanout(payload) {
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return Result{Status: StatusError, Error: "invalid fan-out envelope"}
		}
		return r.processBatch(env.Records)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.log.Error("invalid notification payload", "error", err)
		return Result{Status: StatusError, Error: "invalid notification payload"}
	}
	return r.send(ctx, msg)
}

// processBatch handles each record independently: a parse failure for one
// record produces an ERROR result for that record only, in input order.
func (r *Router) processBatch(records []Record) Result {
	r.log.Info("processing fan-out batch", "records", len(records))

	results := make([]Result, 0, len(records))
	for _, record := range records {
		var msg Message
		if err := json.Unmarshal([]byte(record.Message), &msg); err != nil {
			r.log.Error("invalid JSON in fan-out record", "error", err)
			results = append(results, Result{Status: StatusError, Error: "invalid JSON in fan-out record"})
			continue
		}
		results = append(results, r.consume(msg))
	}
	return Result{Status: StatusProcessed, Results: results}
}

// consume handles a delivered message: it is logged for operators, not
// re-published.
func (r *Router) consume(msg Message) Result {
	t := ParseType(msg.NotificationType)
	r.metrics.IncrementNotification(string(t), StatusProcessed)

	switch t {
	case TypeNoExpiring:
		domains := make([]string, 0, len(msg.DomainsChecked))
		for _, d := range msg.DomainsChecked {
			domains = append(domains, d.Domain)
		}
		r.log.Info("no expiring certificates", "domains", domains)
	case TypeCertificatesUpdated:
		r.log.Info("certificates updated", "count", len(msg.CertificatesUpdated))
		for _, cert := range msg.CertificatesUpdated {
			r.log.Info("updated certificate",
				"domain", cert.Domain, "new_handle", cert.NewHandle, "expiration", cert.ExpirationDate)
			if !cert.OldDeleted {
				r.log.Warn("old certificate not deleted",
					"domain", cert.Domain, "error", cert.DeletionError)
			}
		}
	case TypeGenerationFailure:
		r.log.Error("certificate generation failed",
			"domain", msg.Domain, "error", msg.ErrorDetails)
	case TypeReplacementFailure:
		r.log.Error("certificate replacement failed",
			"domain", msg.Domain, "error", msg.ErrorDetails)
	default:
		switch msg.Severity {
		case SeverityHigh:
			r.log.Error("general notification", "message", msg.Message)
		case SeverityMedium:
			r.log.Warn("general notification", "message", msg.Message)
		default:
			r.log.Info("general notification", "message", msg.Message)
		}
	}

	return Result{Status: StatusProcessed, NotificationType: t}
}

// send formats and publishes a direct notification. Sender errors are
// categorized into reported failure reasons, never raised.
func (r *Router) send(ctx context.Context, msg Message) Result {
	t := ParseType(msg.NotificationType)
	now := r.now()

	subject := Subject(msg)
	body, err := Body(msg, now)
	if err != nil {
		r.metrics.IncrementNotification(string(t), StatusError)
		return Result{Status: StatusError, NotificationType: t, Error: fmt.Sprintf("format message: %v", err)}
	}

	messageID, err := r.sender.Publish(ctx, subject, string(body), Attributes(msg, now))
	if err != nil {
		r.metrics.IncrementNotification(string(t), StatusFailed)
		return Result{Status: StatusFailed, NotificationType: t, Error: failureReason(err)}
	}

	r.log.Info("notification sent", "type", t, "message_id", messageID)
	r.metrics.IncrementNotification(string(t), StatusSent)
	return Result{Status: StatusSent, NotificationType: t, MessageID: messageID, Subject: subject}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return fmt.Sprintf("destination not found: %v", err)
	case errors.Is(err, sentinel.ErrInvalidInput):
		return fmt.Sprintf("invalid parameters: %v", err)
	default:
		return fmt.Sprintf("send failed: %v", err)
	}
}
