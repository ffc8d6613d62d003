package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certflow/internal/artifact"
	"certflow/internal/audit"
	"certflow/internal/ca"
	"certflow/internal/expiry"
	"certflow/internal/issuer"
	"certflow/internal/notify"
	"certflow/internal/platform/metrics"
	"certflow/pkg/platform/sentinel"
)

// Service drives the Check -> Generate -> Replace -> Notify sequence. It
// owns transaction ids and branch decisions; collaborators own their own
// timeouts and retries. One call runs one linear step to completion; any
// concurrency happens across transactions, never inside one.
type Service struct {
	ca       ca.Client
	store    artifact.Store
	issuer   issuer.Issuer
	recorder *audit.Recorder
	router   *notify.Router
	log      *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

func New(caClient ca.Client, store artifact.Store, iss issuer.Issuer, recorder *audit.Recorder, router *notify.Router, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		ca:       caClient,
		store:    store,
		issuer:   iss,
		recorder: recorder,
		router:   router,
		log:      log,
		metrics:  m,
		tracer:   otel.Tracer("certflow/pipeline"),
		now:      time.Now,
	}
}

// Check queries the CA for the domain's certificate and decides whether the
// pipeline needs to act. A check record is written unconditionally,
// including the satisfied case. CA failures are terminal: an error record
// is written, then the error propagates.
func (s *Service) Check(ctx context.Context, domain string) (CheckResult, error) {
	tx := NewTransaction(domain)
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "pipeline.check", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("transaction_id", tx.ID),
	))
	defer span.End()
	defer func() { s.metrics.ObserveStep("check", time.Since(start)) }()

	log := s.log.With("domain", domain, "transaction_id", tx.ID)
	log.Info("starting certificate check")

	descriptor, err := s.ca.FindByDomain(ctx, domain)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		log.Error("certificate lookup failed", "error", err)
		s.recordError(ctx, tx, audit.RecordCheckError, audit.ActionCheckError, err)
		s.metrics.IncrementOutcome("check", "error")
		return CheckResult{}, fmt.Errorf("find certificate for %s: %w", domain, err)
	}

	if errors.Is(err, sentinel.ErrNotFound) || descriptor.NotAfter == nil {
		status := ca.StatusNotFound
		if err == nil {
			// Found but without an expiration to evaluate (e.g. pending
			// issuance): nothing to check, so treat it as missing.
			status = descriptor.Status
		}
		record := audit.CheckRecord{
			TransactionID:     tx.ID,
			Domain:            domain,
			CheckTimestamp:    s.now().UTC().Format(time.RFC3339),
			Action:            audit.ActionCheck,
			CertificateHandle: descriptor.Handle,
			CertificateStatus: string(status),
			IsExpired:         true,
			IsExpiringSoon:    true,
		}
		if err := s.recorder.Record(ctx, tx.ID, audit.RecordCheckMetadata, record); err != nil {
			s.metrics.IncrementOutcome("check", "error")
			return CheckResult{}, err
		}

		log.Warn("no usable certificate found")
		s.metrics.IncrementOutcome("check", "needs_action")
		return CheckResult{
			Expired:           true,
			Domain:            domain,
			TransactionID:     tx.ID,
			CertificateHandle: descriptor.Handle,
			Reason:            ReasonNotFound,
		}, nil
	}

	verdict := expiry.Evaluate(*descriptor.NotAfter, s.now())
	expirationDate := verdict.NotAfter.UTC().Format(time.RFC3339)

	record := audit.CheckRecord{
		TransactionID:     tx.ID,
		Domain:            domain,
		CheckTimestamp:    s.now().UTC().Format(time.RFC3339),
		Action:            audit.ActionCheck,
		CertificateHandle: descriptor.Handle,
		CertificateStatus: string(descriptor.Status),
		ExpirationDate:    expirationDate,
		IsExpired:         verdict.Expired,
		IsExpiringSoon:    verdict.ExpiringSoon,
	}
	if err := s.recorder.Record(ctx, tx.ID, audit.RecordCheckMetadata, record); err != nil {
		s.metrics.IncrementOutcome("check", "error")
		return CheckResult{}, err
	}

	result := CheckResult{
		Domain:            domain,
		TransactionID:     tx.ID,
		CertificateHandle: descriptor.Handle,
		ExpirationDate:    expirationDate,
	}
	if verdict.Expired || verdict.ExpiringSoon {
		log.Warn("certificate expired or expiring soon",
			"expired", verdict.Expired, "expiring_soon", verdict.ExpiringSoon)
		result.Expired = true
		result.Reason = ReasonExpiringSoon
		s.metrics.IncrementOutcome("check", "needs_action")
	} else {
		log.Info("certificate is valid and not expiring soon")
		s.metrics.IncrementOutcome("check", "satisfied")
	}
	return result, nil
}

// Generate asks the issuer for a fresh bundle and persists its artifacts.
// Failures here are recovered: the result reports Success=false and the
// surrounding workflow branches on it, nothing is raised.
func (s *Service) Generate(ctx context.Context, domain, transactionID, oldHandle string) GenerateResult {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "pipeline.generate", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("transaction_id", transactionID),
	))
	defer span.End()
	defer func() { s.metrics.ObserveStep("generate", time.Since(start)) }()

	log := s.log.With("domain", domain, "transaction_id", transactionID)
	log.Info("starting certificate generation")

	bundle, err := s.issuer.Issue(ctx, domain)
	if err != nil {
		return s.generationFailed(ctx, domain, transactionID, oldHandle, err)
	}

	notAfter, err := bundle.NotAfter()
	if err != nil {
		return s.generationFailed(ctx, domain, transactionID, oldHandle, err)
	}
	expirationDate := notAfter.UTC().Format(time.RFC3339)

	metadata := map[string]string{
		"domain":         domain,
		"expiration":     expirationDate,
		"transaction_id": transactionID,
		"generated_at":   s.now().UTC().Format(time.RFC3339),
	}
	files := []struct {
		name string
		body []byte
	}{
		{fileCert, bundle.Cert},
		{fileKey, bundle.Key},
		{fileChain, bundle.Chain},
	}
	for _, f := range files {
		if err := s.store.Put(ctx, certificatePath(domain, f.name), f.body, metadata); err != nil {
			return s.generationFailed(ctx, domain, transactionID, oldHandle, err)
		}
	}

	record := audit.GenerationRecord{
		TransactionID:       transactionID,
		Domain:              domain,
		GenerationTimestamp: s.now().UTC().Format(time.RFC3339),
		OldHandle:           oldHandle,
		Action:              audit.ActionGeneration,
		Success:             true,
		ExpirationDate:      expirationDate,
	}
	if err := s.recorder.Record(ctx, transactionID, audit.RecordGenerationMetadata, record); err != nil {
		return s.generationFailed(ctx, domain, transactionID, oldHandle, err)
	}

	log.Info("certificate generation completed", "expiration", expirationDate)
	s.metrics.IncrementOutcome("generate", "success")
	return GenerateResult{
		Success:          true,
		Domain:           domain,
		TransactionID:    transactionID,
		ExpirationDate:   expirationDate,
		ArtifactLocation: certificateLocation(domain),
	}
}

func (s *Service) generationFailed(ctx context.Context, domain, transactionID, oldHandle string, cause error) GenerateResult {
	s.log.Error("certificate generation failed",
		"domain", domain, "transaction_id", transactionID, "error", cause)

	record := audit.GenerationRecord{
		TransactionID:       transactionID,
		Domain:              domain,
		GenerationTimestamp: s.now().UTC().Format(time.RFC3339),
		OldHandle:           oldHandle,
		Action:              audit.ActionGeneration,
		Success:             false,
		Error:               cause.Error(),
	}
	if err := s.recorder.Record(ctx, transactionID, audit.RecordGenerationError, record); err != nil {
		s.log.Error("failed to store generation error record", "error", err)
	}

	s.metrics.IncrementOutcome("generate", "failure")
	return GenerateResult{
		Success:       false,
		Domain:        domain,
		TransactionID: transactionID,
		Error:         fmt.Sprintf("certificate generation failed: %v", cause),
	}
}

// Replace imports the stored artifacts into the CA and retires the old
// handle. It reads everything from the artifact store, so it succeeds even
// when Generate ran in a different process. Retrieval or import failures
// are terminal; a failed deletion of the old certificate is not (a stale
// old certificate is acceptable, an unimported new one is not). Exactly one
// metadata record is written per invocation.
func (s *Service) Replace(ctx context.Context, domain, transactionID, oldHandle string) (ReplaceResult, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "pipeline.replace", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("transaction_id", transactionID),
	))
	defer span.End()
	defer func() { s.metrics.ObserveStep("replace", time.Since(start)) }()

	log := s.log.With("domain", domain, "transaction_id", transactionID)
	log.Info("starting certificate replacement")

	cert, err := s.store.Get(ctx, certificatePath(domain, fileCert))
	if err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}
	key, err := s.store.Get(ctx, certificatePath(domain, fileKey))
	if err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}
	chain, err := s.store.Get(ctx, certificatePath(domain, fileChain))
	if err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}
	expirationDate := cert.Metadata["expiration"]

	newHandle, err := s.ca.Import(ctx, cert.Body, key.Body, chain.Body)
	if err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}
	log.Info("certificate imported", "new_handle", newHandle)

	oldDeleted := false
	deletionError := ""
	if oldHandle != "" {
		if err := s.ca.Delete(ctx, oldHandle); err != nil {
			log.Warn("failed to delete old certificate", "old_handle", oldHandle, "error", err)
			deletionError = err.Error()
		} else {
			log.Info("old certificate deleted", "old_handle", oldHandle)
			oldDeleted = true
		}
	}

	now := s.now()
	if err := s.writeInventoryEntry(ctx, InventoryEntry{
		CertificateHandle: newHandle,
		Domain:            domain,
		ExpirationDate:    expirationDate,
		TransactionID:     transactionID,
		Status:            InventoryActive,
	}, now); err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}
	if oldDeleted {
		if err := s.writeInventoryEntry(ctx, InventoryEntry{
			CertificateHandle: oldHandle,
			Domain:            domain,
			ExpirationDate:    expirationDate,
			TransactionID:     transactionID,
			Status:            InventoryDeleted,
			ReplacedBy:        newHandle,
		}, now); err != nil {
			return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
		}
	}

	if err := s.writeReplacementSummary(ctx, replacementSummary{
		TransactionID:   transactionID,
		Domain:          domain,
		ImportTimestamp: now.UTC().Format(time.RFC3339),
		OldHandle:       oldHandle,
		NewHandle:       newHandle,
		ExpirationDate:  expirationDate,
		CertificatePath: certificateLocation(domain),
		TransactionPath: "transactions/" + transactionID + "/",
	}); err != nil {
		return s.replacementFailed(ctx, domain, transactionID, oldHandle, err)
	}

	record := audit.ReplacementRecord{
		TransactionID:        transactionID,
		Domain:               domain,
		ReplacementTimestamp: now.UTC().Format(time.RFC3339),
		OldHandle:            oldHandle,
		NewHandle:            newHandle,
		ExpirationDate:       expirationDate,
		Action:               audit.ActionReplacement,
		Success:              true,
	}
	if record.OldHandle != "" && !oldDeleted {
		record.Error = deletionError
	}
	if err := s.recorder.Record(ctx, transactionID, audit.RecordReplacementMetadata, record); err != nil {
		s.log.Error("failed to store replacement record", "error", err)
		s.metrics.IncrementOutcome("replace", "error")
		return ReplaceResult{}, err
	}

	log.Info("certificate replacement completed", "new_handle", newHandle, "old_deleted", oldDeleted)
	s.metrics.IncrementOutcome("replace", "success")
	return ReplaceResult{
		Success:        true,
		Domain:         domain,
		TransactionID:  transactionID,
		NewHandle:      newHandle,
		OldHandle:      oldHandle,
		ExpirationDate: expirationDate,
		OldDeleted:     oldDeleted,
		DeletionError:  deletionError,
	}, nil
}

func (s *Service) replacementFailed(ctx context.Context, domain, transactionID, oldHandle string, cause error) (ReplaceResult, error) {
	s.log.Error("certificate replacement failed",
		"domain", domain, "transaction_id", transactionID, "error", cause)

	record := audit.ReplacementRecord{
		TransactionID:        transactionID,
		Domain:               domain,
		ReplacementTimestamp: s.now().UTC().Format(time.RFC3339),
		OldHandle:            oldHandle,
		Action:               audit.ActionReplacement,
		Success:              false,
		Error:                cause.Error(),
	}
	if err := s.recorder.Record(ctx, transactionID, audit.RecordReplacementError, record); err != nil {
		s.log.Error("failed to store replacement error record", "error", err)
	}

	s.metrics.IncrementOutcome("replace", "error")
	return ReplaceResult{}, fmt.Errorf("replace certificate for %s: %w", domain, cause)
}

// Notify routes a notification payload. Delivery failure never blocks
// pipeline completion.
func (s *Service) Notify(ctx context.Context, payload json.RawMessage) notify.Result {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "pipeline.notify")
	defer span.End()
	defer func() { s.metrics.ObserveStep("notify", time.Since(start)) }()

	return s.router.Process(ctx, payload)
}

// Run executes the full sequence for one domain. A satisfied check goes
// straight to done; failures downstream produce a best-effort notification
// and, for terminal replace errors, surface to the caller.
func (s *Service) Run(ctx context.Context, domain string) (RunResult, error) {
	check, err := s.Check(ctx, domain)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{Check: check}

	if !check.Expired {
		return result, nil
	}

	generated := s.Generate(ctx, domain, check.TransactionID, check.CertificateHandle)
	result.Generated = &generated
	if !generated.Success {
		notification := s.notifyFailure(ctx, notify.TypeGenerationFailure, check, generated.Error)
		result.Notification = &notification
		return result, nil
	}

	replaced, err := s.Replace(ctx, domain, check.TransactionID, check.CertificateHandle)
	if err != nil {
		notification := s.notifyFailure(ctx, notify.TypeReplacementFailure, check, err.Error())
		result.Notification = &notification
		return result, err
	}
	result.Replaced = &replaced

	notification := s.notifySuccess(ctx, replaced)
	result.Notification = &notification
	return result, nil
}

func (s *Service) notifyFailure(ctx context.Context, t notify.Type, check CheckResult, errText string) notify.Result {
	msg := notify.Message{
		NotificationType: string(t),
		Domain:           check.Domain,
		TransactionID:    check.TransactionID,
		ErrorDetails:     errText,
		Severity:         notify.SeverityHigh,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return notify.Result{Status: notify.StatusError, Error: err.Error()}
	}
	return s.Notify(ctx, payload)
}

func (s *Service) notifySuccess(ctx context.Context, replaced ReplaceResult) notify.Result {
	msg := notify.Message{
		NotificationType: string(notify.TypeCertificatesUpdated),
		Domain:           replaced.Domain,
		TransactionID:    replaced.TransactionID,
		ArtifactLocation: certificateLocation(replaced.Domain),
		CertificatesUpdated: []notify.CertificateUpdate{{
			Domain:         replaced.Domain,
			NewHandle:      replaced.NewHandle,
			ExpirationDate: replaced.ExpirationDate,
			OldDeleted:     replaced.OldDeleted,
			DeletionError:  replaced.DeletionError,
		}},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return notify.Result{Status: notify.StatusError, Error: err.Error()}
	}
	return s.Notify(ctx, payload)
}

func (s *Service) recordError(ctx context.Context, tx Transaction, name, action string, cause error) {
	record := audit.ErrorRecord{
		TransactionID:  tx.ID,
		Domain:         tx.Domain,
		ErrorTimestamp: s.now().UTC().Format(time.RFC3339),
		ErrorMessage:   cause.Error(),
		Action:         action,
	}
	if err := s.recorder.Record(ctx, tx.ID, name, record); err != nil {
		s.log.Error("failed to store error record", "transaction_id", tx.ID, "error", err)
	}
}
