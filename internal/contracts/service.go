package contracts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

var (
	ErrContractNotFound        = errors.New("contract not found")
	ErrContractNotActive       = errors.New("contract is not active")
	ErrContractNotDraft        = errors.New("contract is not a draft")
	ErrUnauthorized            = errors.New("caller is not a contract participant")
	ErrWorkerHasActiveJob      = errors.New("worker already has an active contract")
	ErrInvalidBudget           = errors.New("budget must be positive")
	ErrNoCheckpoints           = errors.New("contract requires at least one checkpoint")
	ErrInvalidCheckpointAmount = errors.New("checkpoint amount must be positive")
	ErrBudgetMismatch          = errors.New("checkpoint amounts must sum to the budget")
	ErrSettlementNotRequested  = errors.New("settlement was not requested")
)

// DB begins the all-or-nothing transactions each settlement operation runs in.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ContractRepo is the minimal contract-row interface for the engine.
type ContractRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error)
	HasActiveByWorkerTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID) (bool, error)
	AssignWorkerTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID) (bool, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	SetFundsLockedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	SetSettlementRequestedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	SignTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, column, signature string) (*models.Contract, error)
}

type CheckpointRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, cp *models.Checkpoint) error
	ListByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) ([]*models.Checkpoint, error)
	CancelPendingByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error
	CancelNonApprovedByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error
}

type JobRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type ProposalRepo interface {
	ResetAcceptedTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) error
}

// Ledger is the wallet surface the engine moves funds through. Balances are
// never mutated anywhere else.
type Ledger interface {
	LockFunds(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, refType string, refID uuid.UUID) error
	RefundLockedFunds(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, refType string, refID uuid.UUID) error
}

// Notifier fires best-effort events after commit.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Service is the settlement engine: it owns the contract lifecycle and decides
// how locked funds are split when contracts end early.
type Service struct {
	db          DB
	contracts   ContractRepo
	checkpoints CheckpointRepo
	jobs        JobRepo
	proposals   ProposalRepo
	ledger      Ledger
	notifier    Notifier
	log         *slog.Logger
}

func NewService(db DB, contracts ContractRepo, checkpoints CheckpointRepo, jobs JobRepo, proposals ProposalRepo, ledger Ledger, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, contracts: contracts, checkpoints: checkpoints, jobs: jobs, proposals: proposals, ledger: ledger, notifier: notifier, log: log}
}

// CheckpointSpec describes one checkpoint at contract creation.
type CheckpointSpec struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Amount      int64      `json:"amount"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type CreateJobContractInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Budget      int64            `json:"budget"`
	Checkpoints []CheckpointSpec `json:"checkpoints"`
}

type CreateJobContractResult struct {
	Job         *models.Job          `json:"job"`
	Contract    *models.Contract     `json:"contract"`
	Checkpoints []*models.Checkpoint `json:"checkpoints"`
}

// CreateJobContract posts a job: it locks the client's budget and creates the
// job, a DRAFT contract and one PENDING checkpoint per spec, all in one
// transaction. The checkpoint set is validated against the budget before the
// ledger is touched.
func (s *Service) CreateJobContract(ctx context.Context, clientID uuid.UUID, in CreateJobContractInput) (*CreateJobContractResult, error) {
	if in.Budget <= 0 {
		return nil, ErrInvalidBudget
	}
	if len(in.Checkpoints) == 0 {
		return nil, ErrNoCheckpoints
	}
	var sum int64
	for _, spec := range in.Checkpoints {
		if spec.Amount <= 0 {
			return nil, ErrInvalidCheckpointAmount
		}
		sum += spec.Amount
	}
	if sum != in.Budget {
		return nil, ErrBudgetMismatch
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contractID := uuid.New()
	if err := s.ledger.LockFunds(ctx, tx, clientID, in.Budget, models.ReferenceContract, contractID); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Budget:      in.Budget,
		Status:      models.JobStatusOpen,
	}
	if err := s.jobs.CreateTx(ctx, tx, job); err != nil {
		return nil, err
	}

	contract := &models.Contract{
		ID:          contractID,
		JobID:       job.ID,
		ClientID:    clientID,
		TotalAmount: in.Budget,
		Status:      models.ContractStatusDraft,
		FundsLocked: true,
	}
	if err := s.contracts.CreateTx(ctx, tx, contract); err != nil {
		return nil, err
	}

	cps := make([]*models.Checkpoint, 0, len(in.Checkpoints))
	for _, spec := range in.Checkpoints {
		cp := &models.Checkpoint{
			ID:          uuid.New(),
			ContractID:  contract.ID,
			Title:       spec.Title,
			Description: spec.Description,
			Amount:      spec.Amount,
			Status:      models.CheckpointStatusPending,
			DueDate:     spec.DueDate,
		}
		if err := s.checkpoints.CreateTx(ctx, tx, cp); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("job contract created", "job_id", job.ID, "contract_id", contract.ID, "budget", in.Budget)
	return &CreateJobContractResult{Job: job, Contract: contract, Checkpoints: cps}, nil
}

// ActivateOnHire binds the worker and moves the contract DRAFT -> ACTIVE in
// its own transaction.
func (s *Service) ActivateOnHire(ctx context.Context, contractID, workerID uuid.UUID) (*models.Contract, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contract, err := s.ActivateOnHireTx(ctx, tx, contractID, workerID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.notifyActivated(ctx, contract, workerID)
	return contract, nil
}

// ActivateOnHireTx is the tx-scoped activation used by proposal acceptance.
// The worker must hold no other ACTIVE contract (checked before any
// mutation). Carry-forward contracts, whose refunded budget was returned to
// the client at termination, have it re-locked here before going ACTIVE.
func (s *Service) ActivateOnHireTx(ctx context.Context, tx pgx.Tx, contractID, workerID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, ErrContractNotDraft
	}
	busy, err := s.contracts.HasActiveByWorkerTx(ctx, tx, workerID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrWorkerHasActiveJob
	}
	if !contract.FundsLocked {
		if err := s.ledger.LockFunds(ctx, tx, contract.ClientID, contract.TotalAmount, models.ReferenceContract, contract.ID); err != nil {
			return nil, err
		}
		if err := s.contracts.SetFundsLockedTx(ctx, tx, contract.ID); err != nil {
			return nil, err
		}
	}
	ok, err := s.contracts.AssignWorkerTx(ctx, tx, contract.ID, workerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrContractNotDraft
	}
	if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusInProgress); err != nil {
		return nil, err
	}
	contract.WorkerID = &workerID
	contract.Status = models.ContractStatusActive
	contract.FundsLocked = true
	return contract, nil
}

type TerminationResult struct {
	RefundAmount int64            `json:"refund_amount"`
	NewContract  *models.Contract `json:"new_contract,omitempty"`
}

// Terminate cancels an ACTIVE contract at either participant's request.
// Still-PENDING checkpoints are cancelled and their sum refunded to the
// client; the job is re-opened; and when unfinished work remains, a successor
// DRAFT contract mirroring the cancelled checkpoints is spawned so the job
// can be re-proposed. The successor is unfunded (funds_locked = false): the
// refunded budget is re-locked when a new worker is hired.
func (s *Service) Terminate(ctx context.Context, contractID, actorID uuid.UUID) (*TerminationResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if actorID != contract.ClientID && (contract.WorkerID == nil || actorID != *contract.WorkerID) {
		return nil, ErrUnauthorized
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractNotActive
	}

	cps, err := s.checkpoints.ListByContractTx(ctx, tx, contract.ID)
	if err != nil {
		return nil, err
	}
	var pending []*models.Checkpoint
	var refund int64
	for _, cp := range cps {
		if cp.Status == models.CheckpointStatusPending {
			pending = append(pending, cp)
			refund += cp.Amount
		}
	}

	if err := s.contracts.UpdateStatusTx(ctx, tx, contract.ID, models.ContractStatusCancelled); err != nil {
		return nil, err
	}
	if err := s.checkpoints.CancelPendingByContractTx(ctx, tx, contract.ID); err != nil {
		return nil, err
	}
	if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusOpen); err != nil {
		return nil, err
	}
	if contract.WorkerID != nil {
		if err := s.proposals.ResetAcceptedTx(ctx, tx, contract.JobID, *contract.WorkerID); err != nil {
			return nil, err
		}
	}

	result := &TerminationResult{RefundAmount: refund}
	if refund > 0 {
		if err := s.ledger.RefundLockedFunds(ctx, tx, contract.ClientID, refund, models.ReferenceContractTermination, contract.ID); err != nil {
			return nil, err
		}
		successor := &models.Contract{
			ID:          uuid.New(),
			JobID:       contract.JobID,
			ClientID:    contract.ClientID,
			TotalAmount: refund,
			Status:      models.ContractStatusDraft,
			FundsLocked: false,
		}
		if err := s.contracts.CreateTx(ctx, tx, successor); err != nil {
			return nil, err
		}
		for _, cp := range pending {
			mirror := &models.Checkpoint{
				ID:          uuid.New(),
				ContractID:  successor.ID,
				Title:       cp.Title,
				Description: cp.Description,
				Amount:      cp.Amount,
				Status:      models.CheckpointStatusPending,
				DueDate:     cp.DueDate,
			}
			if err := s.checkpoints.CreateTx(ctx, tx, mirror); err != nil {
				return nil, err
			}
		}
		result.NewContract = successor
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("contract terminated", "contract_id", contract.ID, "actor_id", actorID, "refund", refund)
	s.notifyParticipants(ctx, contract, models.NotifyContractTerminated, "Contract terminated",
		fmt.Sprintf("Contract %s was terminated; %d points refunded to escrow owner", contract.ID, refund),
		map[string]any{"contract_id": contract.ID, "refund_amount": refund})
	return result, nil
}

// RequestSettlement is the worker's early-exit request: it stamps the
// contract so the client can finalize, without cancelling anything yet.
func (s *Service) RequestSettlement(ctx context.Context, contractID, workerID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return notFound(err, ErrContractNotFound)
	}
	if contract.WorkerID == nil || workerID != *contract.WorkerID {
		return ErrUnauthorized
	}
	if contract.Status != models.ContractStatusActive {
		return ErrContractNotActive
	}
	if err := s.contracts.SetSettlementRequestedTx(ctx, tx, contract.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Notify(ctx, contract.ClientID, models.NotifySettlementRequested, "Settlement requested",
		fmt.Sprintf("The worker requested early settlement of contract %s", contract.ID),
		map[string]any{"contract_id": contract.ID})
	return nil
}

// FinalizeSettlement completes the worker-requested early exit: every
// non-APPROVED checkpoint is cancelled, its sum refunded, and the contract
// completed without a successor.
func (s *Service) FinalizeSettlement(ctx context.Context, contractID, clientID uuid.UUID) (*models.Contract, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	if clientID != contract.ClientID {
		return nil, ErrUnauthorized
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractNotActive
	}
	if contract.SettlementRequestedAt == nil {
		return nil, ErrSettlementNotRequested
	}

	cps, err := s.checkpoints.ListByContractTx(ctx, tx, contract.ID)
	if err != nil {
		return nil, err
	}
	var remaining int64
	for _, cp := range cps {
		if cp.Status != models.CheckpointStatusApproved {
			remaining += cp.Amount
		}
	}
	if err := s.checkpoints.CancelNonApprovedByContractTx(ctx, tx, contract.ID); err != nil {
		return nil, err
	}
	if remaining > 0 {
		if err := s.ledger.RefundLockedFunds(ctx, tx, contract.ClientID, remaining, models.ReferenceContractSettlement, contract.ID); err != nil {
			return nil, err
		}
	}
	if err := s.contracts.UpdateStatusTx(ctx, tx, contract.ID, models.ContractStatusCompleted); err != nil {
		return nil, err
	}
	if err := s.jobs.UpdateStatusTx(ctx, tx, contract.JobID, models.JobStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	contract.Status = models.ContractStatusCompleted
	s.log.Info("settlement finalized", "contract_id", contract.ID, "refund", remaining)
	s.notifyParticipants(ctx, contract, models.NotifySettlementFinalized, "Settlement finalized",
		fmt.Sprintf("Contract %s was settled early", contract.ID),
		map[string]any{"contract_id": contract.ID, "refund_amount": remaining})
	return contract, nil
}

// Sign records the participant's digital signature on the contract. Signing
// is a record of assent; activation is driven by proposal acceptance.
func (s *Service) Sign(ctx context.Context, contractID, userID uuid.UUID) (*models.Contract, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	contract, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	var column string
	switch {
	case userID == contract.ClientID:
		column = "client_signature"
	case contract.WorkerID != nil && userID == *contract.WorkerID:
		column = "worker_signature"
	default:
		return nil, ErrUnauthorized
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d", contract.ID, userID, time.Now().UnixNano()))
	signed, err := s.contracts.SignTx(ctx, tx, contract.ID, column, hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return signed, nil
}

// Get returns a contract by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	return c, nil
}

func (s *Service) notifyActivated(ctx context.Context, contract *models.Contract, workerID uuid.UUID) {
	s.notifier.Notify(ctx, workerID, models.NotifyContractActivated, "Contract activated",
		fmt.Sprintf("You were hired on contract %s", contract.ID),
		map[string]any{"contract_id": contract.ID, "job_id": contract.JobID})
	s.notifier.Notify(ctx, contract.ClientID, models.NotifyContractActivated, "Contract activated",
		fmt.Sprintf("Contract %s is now active", contract.ID),
		map[string]any{"contract_id": contract.ID, "job_id": contract.JobID})
}

func (s *Service) notifyParticipants(ctx context.Context, contract *models.Contract, typ, title, message string, data map[string]any) {
	s.notifier.Notify(ctx, contract.ClientID, typ, title, message, data)
	if contract.WorkerID != nil {
		s.notifier.Notify(ctx, *contract.WorkerID, typ, title, message, data)
	}
}

// notFound maps a missing row onto the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
