package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

var (
	ErrDisputeNotFound        = errors.New("dispute not found")
	ErrContractNotFound       = errors.New("contract not found")
	ErrUnauthorized           = errors.New("caller is not a contract participant")
	ErrContractNotActive      = errors.New("contract is not active")
	ErrDisputeAlreadyResolved = errors.New("dispute already resolved")
	ErrInvalidResolution      = errors.New("invalid resolution type")
)

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type DisputeRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error)
}

type ContractRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type CheckpointRepo interface {
	ListByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) ([]*models.Checkpoint, error)
	CancelNonApprovedByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error
	ApproveNonApprovedByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error
}

type JobRepo interface {
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// Ledger moves the disputed funds: a refund for CLIENT_WINS, a fee-split
// release for WORKER_WINS.
type Ledger interface {
	RefundLockedFunds(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, refType string, refID uuid.UUID) error
	ReleaseFunds(ctx context.Context, tx pgx.Tx, clientID, workerID uuid.UUID, amount int64, refType string, refID uuid.UUID) (payout, fee int64, err error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Service opens disputes on active contracts and applies arbitrator rulings.
type Service struct {
	db          DB
	disputes    DisputeRepo
	contracts   ContractRepo
	checkpoints CheckpointRepo
	jobs        JobRepo
	ledger      Ledger
	notifier    Notifier
	log         *slog.Logger
}

func NewService(db DB, disputes DisputeRepo, contracts ContractRepo, checkpoints CheckpointRepo, jobs JobRepo, ledger Ledger, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, disputes: disputes, contracts: contracts, checkpoints: checkpoints, jobs: jobs, ledger: ledger, notifier: notifier, log: log}
}

// Open raises a dispute on an ACTIVE contract and freezes it in DISPUTED
// state until an arbitrator rules.
func (s *Service) Open(ctx context.Context, contractID, userID uuid.UUID, reason string) (*models.Dispute, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if userID != contract.ClientID && (contract.WorkerID == nil || userID != *contract.WorkerID) {
		return nil, ErrUnauthorized
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractNotActive
	}

	dispute := &models.Dispute{
		ID:         uuid.New(),
		ContractID: contractID,
		RaisedBy:   userID,
		Reason:     reason,
		Status:     models.DisputeStatusOpen,
	}
	if err := s.disputes.CreateTx(ctx, tx, dispute); err != nil {
		return nil, err
	}
	if err := s.contracts.UpdateStatusTx(ctx, tx, contractID, models.ContractStatusDisputed); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	otherParty := contract.ClientID
	if userID == contract.ClientID && contract.WorkerID != nil {
		otherParty = *contract.WorkerID
	}
	s.notifier.Notify(ctx, otherParty, models.NotifyDisputeOpened, "Dispute opened",
		fmt.Sprintf("A dispute was opened on contract %s", contractID),
		map[string]any{"dispute_id": dispute.ID, "contract_id": contractID})
	return dispute, nil
}

// Resolve applies the arbitrator's binding ruling exactly once. The pending
// amount is the sum of every checkpoint not yet APPROVED at ruling time:
// CLIENT_WINS refunds it and cancels the contract, WORKER_WINS releases it
// through the same fee-split path as checkpoint approval and completes the
// contract.
func (s *Service) Resolve(ctx context.Context, disputeID uuid.UUID, resolution string, arbitratorID uuid.UUID) (*models.Dispute, error) {
	if resolution != models.ResolutionClientWins && resolution != models.ResolutionWorkerWins {
		return nil, ErrInvalidResolution
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dispute, err := s.disputes.GetByIDForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, notFound(err, ErrDisputeNotFound)
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, ErrDisputeAlreadyResolved
	}
	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, dispute.ContractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}

	cps, err := s.checkpoints.ListByContractTx(ctx, tx, contract.ID)
	if err != nil {
		return nil, err
	}
	var pending int64
	for _, cp := range cps {
		if cp.Status != models.CheckpointStatusApproved {
			pending += cp.Amount
		}
	}

	switch resolution {
	case models.ResolutionClientWins:
		if pending > 0 {
			if err := s.ledger.RefundLockedFunds(ctx, tx, contract.ClientID, pending, models.ReferenceDisputeResolution, disputeID); err != nil {
				return nil, err
			}
		}
		if err := s.checkpoints.CancelNonApprovedByContractTx(ctx, tx, contract.ID); err != nil {
			return nil, err
		}
		if err := s.contracts.UpdateStatusTx(ctx, tx, contract.ID, models.ContractStatusCancelled); err != nil {
			return nil, err
		}
		if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusOpen); err != nil {
			return nil, err
		}
	case models.ResolutionWorkerWins:
		if pending > 0 {
			if _, _, err := s.ledger.ReleaseFunds(ctx, tx, contract.ClientID, *contract.WorkerID, pending, models.ReferenceDisputeResolution, disputeID); err != nil {
				return nil, err
			}
		}
		if err := s.checkpoints.ApproveNonApprovedByContractTx(ctx, tx, contract.ID); err != nil {
			return nil, err
		}
		if err := s.contracts.UpdateStatusTx(ctx, tx, contract.ID, models.ContractStatusCompleted); err != nil {
			return nil, err
		}
		if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusCompleted); err != nil {
			return nil, err
		}
	}

	ok, err := s.disputes.ResolveTx(ctx, tx, disputeID, resolution, arbitratorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDisputeAlreadyResolved
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	dispute.Status = models.DisputeStatusResolved
	dispute.Resolution = &resolution
	dispute.ResolvedBy = &arbitratorID
	s.log.Info("dispute resolved", "dispute_id", disputeID, "resolution", resolution, "pending", pending)
	msg := fmt.Sprintf("Dispute %s has been resolved: %s", disputeID, resolution)
	s.notifier.Notify(ctx, contract.ClientID, models.NotifyDisputeResolved, "Dispute resolved", msg,
		map[string]any{"dispute_id": disputeID, "resolution": resolution})
	if contract.WorkerID != nil {
		s.notifier.Notify(ctx, *contract.WorkerID, models.NotifyDisputeResolved, "Dispute resolved", msg,
			map[string]any{"dispute_id": disputeID, "resolution": resolution})
	}
	return dispute, nil
}

// Get returns a dispute when the caller participates in its contract, or is
// an arbitrator.
func (s *Service) Get(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, notFound(err, ErrDisputeNotFound)
	}
	return d, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
