package proposals

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

var (
	ErrJobNotFound           = errors.New("job not found")
	ErrJobNotOpen            = errors.New("job is not open for proposals")
	ErrAlreadyApplied        = errors.New("worker already applied to this job")
	ErrWorkerBusyCannotApply = errors.New("worker has an active contract and cannot apply")
	ErrProposalNotFound      = errors.New("proposal not found")
	ErrProposalNotPending    = errors.New("proposal is not pending")
	ErrUnauthorized          = errors.New("caller does not own this job")
	ErrContractNotFound      = errors.New("no draft contract for this job")
)

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type ProposalRepo interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error)
	ExistsByJobAndWorker(ctx context.Context, jobID, workerID uuid.UUID) (bool, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	WithdrawOtherPendingTx(ctx context.Context, tx pgx.Tx, workerID, exceptID uuid.UUID) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Proposal, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Proposal, error)
}

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
}

type ContractRepo interface {
	HasActiveByWorker(ctx context.Context, workerID uuid.UUID) (bool, error)
	GetDraftByJobTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Contract, error)
}

// Activator activates the job's draft contract inside the acceptance
// transaction. Implemented by the contracts service.
type Activator interface {
	ActivateOnHireTx(ctx context.Context, tx pgx.Tx, contractID, workerID uuid.UUID) (*models.Contract, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Service handles worker applications and the client's hire decision.
type Service struct {
	db        DB
	proposals ProposalRepo
	jobs      JobRepo
	contracts ContractRepo
	activator Activator
	notifier  Notifier
	log       *slog.Logger
}

func NewService(db DB, proposals ProposalRepo, jobs JobRepo, contracts ContractRepo, activator Activator, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, proposals: proposals, jobs: jobs, contracts: contracts, activator: activator, notifier: notifier, log: log}
}

// Create files a proposal on an open job. A worker bound to an ACTIVE
// contract may not apply (exclusive-work policy).
func (s *Service) Create(ctx context.Context, jobID, workerID uuid.UUID, coverLetter string, proposedPrice int64) (*models.Proposal, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.Status != models.JobStatusOpen {
		return nil, ErrJobNotOpen
	}
	exists, err := s.proposals.ExistsByJobAndWorker(ctx, jobID, workerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyApplied
	}
	busy, err := s.contracts.HasActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrWorkerBusyCannotApply
	}

	p := &models.Proposal{
		ID:            uuid.New(),
		JobID:         jobID,
		WorkerID:      workerID,
		CoverLetter:   coverLetter,
		ProposedPrice: proposedPrice,
		Status:        models.ProposalStatusPending,
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type AcceptResult struct {
	Proposal *models.Proposal `json:"proposal"`
	Contract *models.Contract `json:"contract"`
}

// Accept hires the proposing worker: one transaction accepts the proposal,
// withdraws the worker's other pending applications, and activates the job's
// draft contract (locking the budget for carry-forward contracts).
func (s *Service) Accept(ctx context.Context, proposalID, clientID uuid.UUID) (*AcceptResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	proposal, err := s.proposals.GetByIDTx(ctx, tx, proposalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	if proposal.Status != models.ProposalStatusPending {
		return nil, ErrProposalNotPending
	}
	job, err := s.jobs.GetByIDTx(ctx, tx, proposal.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != clientID {
		return nil, ErrUnauthorized
	}

	draft, err := s.contracts.GetDraftByJobTx(ctx, tx, proposal.JobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	contract, err := s.activator.ActivateOnHireTx(ctx, tx, draft.ID, proposal.WorkerID)
	if err != nil {
		return nil, err
	}

	if err := s.proposals.UpdateStatusTx(ctx, tx, proposal.ID, models.ProposalStatusAccepted); err != nil {
		return nil, err
	}
	if err := s.proposals.WithdrawOtherPendingTx(ctx, tx, proposal.WorkerID, proposal.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	proposal.Status = models.ProposalStatusAccepted
	s.log.Info("proposal accepted", "proposal_id", proposal.ID, "contract_id", contract.ID, "worker_id", proposal.WorkerID)
	s.notifier.Notify(ctx, proposal.WorkerID, models.NotifyContractActivated, "Proposal accepted",
		"Your proposal was accepted and the contract is now active",
		map[string]any{"proposal_id": proposal.ID, "contract_id": contract.ID})
	return &AcceptResult{Proposal: proposal, Contract: contract}, nil
}

func (s *Service) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Proposal, error) {
	return s.proposals.ListByJob(ctx, jobID)
}

func (s *Service) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Proposal, error) {
	return s.proposals.ListByWorker(ctx, workerID)
}
