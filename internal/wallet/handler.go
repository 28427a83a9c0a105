package wallet

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/middleware"
)

type DepositRequest struct {
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id,omitempty"`
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

// GetWallet returns the caller's wallet, creating a zero one on first access.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	wal, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "get wallet failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// Deposit credits a top-up to the caller's balance.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	refID := uuid.New()
	if req.ReferenceID != "" {
		parsed, err := uuid.Parse(req.ReferenceID)
		if err != nil {
			http.Error(w, "invalid reference_id", http.StatusBadRequest)
			return
		}
		refID = parsed
	}
	wal, err := h.svc.Deposit(r.Context(), userID, req.Amount, refID)
	if err != nil {
		h.log.Error("deposit failed", "error", err)
		http.Error(w, "deposit failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// ListTransactions returns the caller's ledger entries, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	limit, offset := pagination(r)
	list, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "list transactions failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
