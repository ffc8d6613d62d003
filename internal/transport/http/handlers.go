package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"certflow/internal/notify"
	"certflow/internal/pipeline"
	"certflow/pkg/platform/sentinel"
)

// PipelineService defines the pipeline operations the API exposes to the
// external scheduler.
type PipelineService interface {
	Check(ctx context.Context, domain string) (pipeline.CheckResult, error)
	Generate(ctx context.Context, domain, transactionID, oldHandle string) pipeline.GenerateResult
	Replace(ctx context.Context, domain, transactionID, oldHandle string) (pipeline.ReplaceResult, error)
	Notify(ctx context.Context, payload json.RawMessage) notify.Result
	Run(ctx context.Context, domain string) (pipeline.RunResult, error)
}

// Handler is the thin HTTP layer. It delegates to the pipeline service
// without embedding business logic so transport concerns remain isolated.
type Handler struct {
	service PipelineService
	log     *slog.Logger
}

func NewHandler(service PipelineService, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

type checkRequest struct {
	Domain string `json:"domain"`
}

type stepRequest struct {
	Domain        string `json:"domain"`
	TransactionID string `json:"transaction_id"`
	OldHandle     string `json:"old_certificate_handle,omitempty"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	result, err := h.service.Check(r.Context(), req.Domain)
	if err != nil {
		h.log.Error("check failed", "domain", req.Domain, "error", err)
		writeError(w, collaboratorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" || req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "domain and transaction_id are required")
		return
	}

	// Generation failures are recovered into the result body; the HTTP
	// status stays 200 so the scheduler branches on the success flag.
	result := h.service.Generate(r.Context(), req.Domain, req.TransactionID, req.OldHandle)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" || req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "domain and transaction_id are required")
		return
	}

	result, err := h.service.Replace(r.Context(), req.Domain, req.TransactionID, req.OldHandle)
	if err != nil {
		h.log.Error("replace failed", "domain", req.Domain, "error", err)
		writeError(w, collaboratorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}
	writeJSON(w, http.StatusOK, h.service.Notify(r.Context(), payload))
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	result, err := h.service.Run(r.Context(), req.Domain)
	if err != nil {
		h.log.Error("run failed", "domain", req.Domain, "error", err)
		writeError(w, collaboratorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func collaboratorStatus(err error) int {
	if errors.Is(err, sentinel.ErrInvalidInput) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
