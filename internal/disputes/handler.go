package disputes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/models"
)

type OpenRequest struct {
	ContractID string `json:"contract_id"`
	Reason     string `json:"reason"`
}

type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

// OpenLister lists unresolved disputes for the arbitration queue.
type OpenLister interface {
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}

type Handler struct {
	svc    *Service
	lister OpenLister
	log    *slog.Logger
}

func NewHandler(svc *Service, lister OpenLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, lister: lister, log: log}
}

// Open freezes an active contract pending arbitration.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	contractID, err := uuid.Parse(req.ContractID)
	if err != nil {
		http.Error(w, "invalid contract_id", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}
	d, err := h.svc.Open(r.Context(), contractID, userID, req.Reason)
	if err != nil {
		h.writeError(w, "open dispute", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// Resolve settles a dispute one way or the other. Admin only.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	if middleware.RoleFromCtx(r.Context()) != models.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	arbitratorID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid dispute id", http.StatusBadRequest)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	d, err := h.svc.Resolve(r.Context(), id, req.Resolution, arbitratorID)
	if err != nil {
		h.writeError(w, "resolve dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Get returns one dispute.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid dispute id", http.StatusBadRequest)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListOpen returns the arbitration queue. Admin only.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	if middleware.RoleFromCtx(r.Context()) != models.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	list, err := h.lister.ListOpen(r.Context())
	if err != nil {
		h.log.Error("list disputes failed", "error", err)
		http.Error(w, "list disputes failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrDisputeNotFound), errors.Is(err, ErrContractNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrContractNotActive), errors.Is(err, ErrDisputeAlreadyResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidResolution):
		http.Error(w, err.Error(), http.StatusBadRequest)
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
