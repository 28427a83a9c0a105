package checkpoints

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
	ErrCheckpointNotFound         = errors.New("checkpoint not found")
	ErrContractNotFound           = errors.New("contract not found")
	ErrUnauthorized               = errors.New("caller is not a contract participant")
	ErrContractNotActive          = errors.New("contract is not active")
	ErrCheckpointAlreadySubmitted = errors.New("checkpoint already submitted")
	ErrCheckpointNotSubmitted     = errors.New("checkpoint is not submitted")
	ErrAlreadyApproved            = errors.New("checkpoint already approved")
	ErrCheckpointNotOpen          = errors.New("checkpoint is not open for submission")
)

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type CheckpointRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Checkpoint, error)
	ListByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) ([]*models.Checkpoint, error)
	SubmitTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, submissionURL string) (bool, error)
	RejectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, notes string) (bool, error)
	UpdateStatusFromTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
}

type ContractRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type JobRepo interface {
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// Ledger releases escrowed funds with the fee split on approval.
type Ledger interface {
	ReleaseFunds(ctx context.Context, tx pgx.Tx, clientID, workerID uuid.UUID, amount int64, refType string, refID uuid.UUID) (payout, fee int64, err error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Service drives the checkpoint state machine:
// PENDING -> SUBMITTED -> APPROVED, with rejection returning to PENDING and
// cancellation reachable only through contract-level settlement.
type Service struct {
	db          DB
	checkpoints CheckpointRepo
	contracts   ContractRepo
	jobs        JobRepo
	ledger      Ledger
	notifier    Notifier
	log         *slog.Logger
}

func NewService(db DB, checkpoints CheckpointRepo, contracts ContractRepo, jobs JobRepo, ledger Ledger, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, checkpoints: checkpoints, contracts: contracts, jobs: jobs, ledger: ledger, notifier: notifier, log: log}
}

// Submit records the worker's deliverable and moves the checkpoint to
// SUBMITTED. Only the bound worker of an ACTIVE contract may submit.
func (s *Service) Submit(ctx context.Context, checkpointID, workerID uuid.UUID, submissionURL string) (*models.Checkpoint, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cp, err := s.checkpoints.GetByIDTx(ctx, tx, checkpointID)
	if err != nil {
		return nil, notFound(err, ErrCheckpointNotFound)
	}
	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, cp.ContractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if contract.WorkerID == nil || workerID != *contract.WorkerID {
		return nil, ErrUnauthorized
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractNotActive
	}
	switch cp.Status {
	case models.CheckpointStatusPending, models.CheckpointStatusRejected:
	case models.CheckpointStatusSubmitted:
		return nil, ErrCheckpointAlreadySubmitted
	default:
		return nil, ErrCheckpointNotOpen
	}

	ok, err := s.checkpoints.SubmitTx(ctx, tx, checkpointID, submissionURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCheckpointNotOpen
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	cp.Status = models.CheckpointStatusSubmitted
	cp.SubmissionURL = &submissionURL
	s.notifier.Notify(ctx, contract.ClientID, models.NotifyCheckpointSubmitted, "Work submitted",
		fmt.Sprintf("Checkpoint %q was submitted for review", cp.Title),
		map[string]any{"checkpoint_id": cp.ID, "contract_id": contract.ID})
	return cp, nil
}

type ApprovalResult struct {
	Checkpoint        *models.Checkpoint `json:"checkpoint"`
	Payout            int64              `json:"payout"`
	Fee               int64              `json:"fee"`
	ContractCompleted bool               `json:"contract_completed"`
}

// Approve releases the checkpoint's escrowed amount to the worker (minus the
// platform fee) and marks it APPROVED. The contract row is locked before the
// checkpoint and its siblings are read, so two concurrent approvals of the
// last two checkpoints serialize and exactly one observes the all-approved
// state and cascades the contract (and job) to COMPLETED.
func (s *Service) Approve(ctx context.Context, checkpointID, clientID uuid.UUID) (*ApprovalResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	seed, err := s.checkpoints.GetByIDTx(ctx, tx, checkpointID)
	if err != nil {
		return nil, notFound(err, ErrCheckpointNotFound)
	}
	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, seed.ContractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if clientID != contract.ClientID {
		return nil, ErrUnauthorized
	}

	// Fresh read under the contract lock; the pre-lock row may be stale.
	// The status checks run before the contract guard so that re-approving
	// the checkpoint that completed the contract still reports APPROVED.
	cp, err := s.checkpoints.GetByIDTx(ctx, tx, checkpointID)
	if err != nil {
		return nil, notFound(err, ErrCheckpointNotFound)
	}
	switch cp.Status {
	case models.CheckpointStatusApproved:
		return nil, ErrAlreadyApproved
	case models.CheckpointStatusSubmitted:
	default:
		return nil, ErrCheckpointNotSubmitted
	}
	// Termination refunds only still-PENDING work, so a CANCELLED contract
	// can hold SUBMITTED checkpoints whose escrow is still locked. Those
	// remain payable; every other non-ACTIVE state has nothing releasable.
	if contract.Status != models.ContractStatusActive && contract.Status != models.ContractStatusCancelled {
		return nil, ErrContractNotActive
	}

	payout, fee, err := s.ledger.ReleaseFunds(ctx, tx, contract.ClientID, *contract.WorkerID, cp.Amount, models.ReferenceCheckpoint, cp.ID)
	if err != nil {
		return nil, err
	}
	ok, err := s.checkpoints.UpdateStatusFromTx(ctx, tx, cp.ID, models.CheckpointStatusSubmitted, models.CheckpointStatusApproved)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCheckpointNotSubmitted
	}

	// Only an ACTIVE contract cascades to COMPLETED; paying out leftover
	// submitted work on a CANCELLED contract leaves it CANCELLED (its job
	// was already reopened by the termination).
	completed := contract.Status == models.ContractStatusActive
	if completed {
		siblings, err := s.checkpoints.ListByContractTx(ctx, tx, contract.ID)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			if sib.ID == cp.ID {
				continue
			}
			if sib.Status != models.CheckpointStatusApproved {
				completed = false
				break
			}
		}
	}
	if completed {
		if err := s.contracts.UpdateStatusTx(ctx, tx, contract.ID, models.ContractStatusCompleted); err != nil {
			return nil, err
		}
		if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusCompleted); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	cp.Status = models.CheckpointStatusApproved
	s.log.Info("checkpoint approved", "checkpoint_id", cp.ID, "payout", payout, "fee", fee, "contract_completed", completed)
	s.notifier.Notify(ctx, *contract.WorkerID, models.NotifyCheckpointApproved, "Checkpoint approved",
		fmt.Sprintf("Checkpoint %q was approved; %d points released to you", cp.Title, payout),
		map[string]any{"checkpoint_id": cp.ID, "payout": payout})
	if completed {
		s.notifier.Notify(ctx, contract.ClientID, models.NotifyContractCompleted, "Contract completed",
			fmt.Sprintf("All checkpoints of contract %s are approved", contract.ID),
			map[string]any{"contract_id": contract.ID})
		s.notifier.Notify(ctx, *contract.WorkerID, models.NotifyContractCompleted, "Contract completed",
			fmt.Sprintf("All checkpoints of contract %s are approved", contract.ID),
			map[string]any{"contract_id": contract.ID})
	}
	return &ApprovalResult{Checkpoint: cp, Payout: payout, Fee: fee, ContractCompleted: completed}, nil
}

// Reject sends a SUBMITTED checkpoint back to PENDING with review notes so
// the worker can address the feedback and resubmit.
func (s *Service) Reject(ctx context.Context, checkpointID, clientID uuid.UUID, notes string) (*models.Checkpoint, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cp, err := s.checkpoints.GetByIDTx(ctx, tx, checkpointID)
	if err != nil {
		return nil, notFound(err, ErrCheckpointNotFound)
	}
	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, cp.ContractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if clientID != contract.ClientID {
		return nil, ErrUnauthorized
	}
	// Rejection reopens the submit loop, which only exists on an ACTIVE
	// contract. Leftover submitted work on a terminated contract can only
	// be approved, never bounced back to an unsubmittable PENDING.
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractNotActive
	}
	ok, err := s.checkpoints.RejectTx(ctx, tx, checkpointID, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCheckpointNotSubmitted
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	cp.Status = models.CheckpointStatusPending
	cp.ReviewNotes = &notes
	if contract.WorkerID != nil {
		s.notifier.Notify(ctx, *contract.WorkerID, models.NotifyCheckpointRejected, "Checkpoint rejected",
			fmt.Sprintf("Checkpoint %q needs rework", cp.Title),
			map[string]any{"checkpoint_id": cp.ID, "review_notes": notes})
	}
	return cp, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
