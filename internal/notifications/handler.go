package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/models"
)

// InboxRepo is the read/ack surface for a user's delivered notifications.
type InboxRepo interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

type Handler struct {
	repo InboxRepo
	log  *slog.Logger
}

func NewHandler(repo InboxRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	limit, offset := 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	list, err := h.repo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list notifications failed", "error", err)
		http.Error(w, "list notifications failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(list)
}

// MarkRead acknowledges one notification.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.repo.MarkRead(r.Context(), id, userID); err != nil {
		h.log.Error("mark read failed", "error", err)
		http.Error(w, "mark read failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
