package proposals

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/contracts"
	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/wallet"
)

type CreateRequest struct {
	CoverLetter   string `json:"cover_letter"`
	ProposedPrice int64  `json:"proposed_price,omitempty"`
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

// Create applies to an open job.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	workerID := middleware.UserFromCtx(r.Context())
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	p, err := h.svc.Create(r.Context(), jobID, workerID, req.CoverLetter, req.ProposedPrice)
	if err != nil {
		h.writeError(w, "create proposal", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Accept hires the proposing worker and activates the job's draft contract.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid proposal id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Accept(r.Context(), id, clientID)
	if err != nil {
		h.writeError(w, "accept proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListByJob returns all proposals on a job.
func (h *Handler) ListByJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListByJob(r.Context(), jobID)
	if err != nil {
		h.log.Error("list proposals failed", "error", err)
		http.Error(w, "list proposals failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListMine returns the caller's proposals.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	workerID := middleware.UserFromCtx(r.Context())
	list, err := h.svc.ListByWorker(r.Context(), workerID)
	if err != nil {
		h.log.Error("list proposals failed", "error", err)
		http.Error(w, "list proposals failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrProposalNotFound), errors.Is(err, ErrContractNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrJobNotOpen),
		errors.Is(err, ErrAlreadyApplied),
		errors.Is(err, ErrWorkerBusyCannotApply),
		errors.Is(err, ErrProposalNotPending),
		errors.Is(err, contracts.ErrWorkerHasActiveJob),
		errors.Is(err, contracts.ErrContractNotDraft):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, wallet.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
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
