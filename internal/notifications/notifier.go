package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/fafwork/backend/internal/models"
)

// Args is the queued payload for one notification event.
type Args struct {
	UserID  uuid.UUID      `json:"user_id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (Args) Kind() string { return "notification" }

// Repo persists delivered notifications.
type Repo interface {
	Create(ctx context.Context, n *models.Notification) error
}

// DeliverWorker persists notification rows from the queue.
type DeliverWorker struct {
	river.WorkerDefaults[Args]
	repo Repo
	log  *slog.Logger
}

func NewDeliverWorker(repo Repo, log *slog.Logger) *DeliverWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverWorker{repo: repo, log: log}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[Args]) error {
	args := job.Args
	var data json.RawMessage
	if len(args.Data) > 0 {
		b, err := json.Marshal(args.Data)
		if err != nil {
			return err
		}
		data = b
	}
	n := &models.Notification{
		ID:      uuid.New(),
		UserID:  args.UserID,
		Type:    args.Type,
		Title:   args.Title,
		Message: args.Message,
		Data:    data,
	}
	if err := w.repo.Create(ctx, n); err != nil {
		return err
	}
	w.log.Info("notification delivered", "type", args.Type, "user_id", args.UserID)
	return nil
}

// inserter matches river.Client's non-transactional Insert. Notifications are
// enqueued after the settlement transaction commits, never inside it.
type inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Service enqueues best-effort notification events for the DeliverWorker.
type Service struct {
	client inserter
	log    *slog.Logger
}

func NewService(client inserter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, log: log}
}

// Notify enqueues one event. Failures are logged and swallowed: delivery is
// best-effort and must never fail the operation that triggered it.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any) {
	if s == nil || s.client == nil {
		return
	}
	_, err := s.client.Insert(ctx, Args{UserID: userID, Type: typ, Title: title, Message: message, Data: data}, nil)
	if err != nil {
		s.log.Error("notification enqueue failed", "type", typ, "user_id", userID, "error", err)
	}
}
