package checkpoints

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/wallet"
)

type SubmitRequest struct {
	SubmissionURL string `json:"submission_url"`
}

type RejectRequest struct {
	Notes string `json:"notes"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Submit marks a checkpoint as delivered by the worker.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	workerID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid checkpoint id", http.StatusBadRequest)
		return
	}
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SubmissionURL == "" {
		http.Error(w, "submission_url is required", http.StatusBadRequest)
		return
	}
	cp, err := h.svc.Submit(r.Context(), id, workerID, req.SubmissionURL)
	if err != nil {
		h.writeError(w, "submit checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// Approve releases the checkpoint's escrow to the worker.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid checkpoint id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Approve(r.Context(), id, clientID)
	if err != nil {
		h.writeError(w, "approve checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reject sends a submitted checkpoint back to the worker with review notes.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid checkpoint id", http.StatusBadRequest)
		return
	}
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cp, err := h.svc.Reject(r.Context(), id, clientID, req.Notes)
	if err != nil {
		h.writeError(w, "reject checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrCheckpointNotFound), errors.Is(err, ErrContractNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrContractNotActive),
		errors.Is(err, ErrCheckpointAlreadySubmitted),
		errors.Is(err, ErrCheckpointNotSubmitted),
		errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrCheckpointNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, wallet.ErrInsufficientLockedFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
