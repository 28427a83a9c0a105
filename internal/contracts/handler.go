package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/models"
	"github.com/fafwork/backend/internal/wallet"
)

// ContractLister lists contracts outside the engine's transactional surface.
type ContractLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error)
}

// CheckpointLister reads a contract's checkpoints for display.
type CheckpointLister interface {
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Checkpoint, error)
}

type ContractDetail struct {
	Contract    *models.Contract     `json:"contract"`
	Checkpoints []*models.Checkpoint `json:"checkpoints"`
}

type Handler struct {
	svc         *Service
	contracts   ContractLister
	checkpoints CheckpointLister
	log         *slog.Logger
}

func NewHandler(svc *Service, contracts ContractLister, checkpoints CheckpointLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, contracts: contracts, checkpoints: checkpoints, log: log}
}

// Create posts a job with its escrow contract and checkpoint plan.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.UserFromCtx(r.Context())
	var in CreateJobContractInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if in.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateJobContract(r.Context(), clientID, in)
	if err != nil {
		h.writeError(w, "create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Get returns one contract with its checkpoints. Participants only.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get contract", err)
		return
	}
	if c.ClientID != userID && (c.WorkerID == nil || *c.WorkerID != userID) && middleware.RoleFromCtx(r.Context()) != models.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	cps, err := h.checkpoints.ListByContract(r.Context(), id)
	if err != nil {
		h.log.Error("list checkpoints failed", "error", err)
		http.Error(w, "get contract failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ContractDetail{Contract: c, Checkpoints: cps})
}

// List returns the caller's contracts on either side.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	list, err := h.contracts.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list contracts failed", "error", err)
		http.Error(w, "list contracts failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Terminate ends an active contract early and refunds pending escrow.
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Terminate(r.Context(), id, userID)
	if err != nil {
		h.writeError(w, "terminate contract", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RequestSettlement records the worker's request to settle early.
func (h *Handler) RequestSettlement(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return
	}
	if err := h.svc.RequestSettlement(r.Context(), id, userID); err != nil {
		h.writeError(w, "request settlement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinalizeSettlement closes out a requested settlement on the client's approval.
func (h *Handler) FinalizeSettlement(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return
	}
	c, err := h.svc.FinalizeSettlement(r.Context(), id, userID)
	if err != nil {
		h.writeError(w, "finalize settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Sign records the caller's signature on the contract.
func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return
	}
	c, err := h.svc.Sign(r.Context(), id, userID)
	if err != nil {
		h.writeError(w, "sign contract", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrContractNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrContractNotActive),
		errors.Is(err, ErrContractNotDraft),
		errors.Is(err, ErrSettlementNotRequested),
		errors.Is(err, ErrWorkerHasActiveJob):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidBudget),
		errors.Is(err, ErrNoCheckpoints),
		errors.Is(err, ErrInvalidCheckpointAmount),
		errors.Is(err, ErrBudgetMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
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
