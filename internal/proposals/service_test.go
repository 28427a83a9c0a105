package proposals

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// ---

type mockProposals struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Proposal
}

func newMockProposals() *mockProposals {
	return &mockProposals{byID: make(map[uuid.UUID]*models.Proposal)}
}

func (m *mockProposals) Create(_ context.Context, p *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockProposals) GetByIDTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockProposals) ExistsByJobAndWorker(_ context.Context, jobID, workerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.JobID == jobID && p.WorkerID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProposals) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	return nil
}

func (m *mockProposals) WithdrawOtherPendingTx(_ context.Context, _ pgx.Tx, workerID, exceptID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.WorkerID == workerID && p.ID != exceptID && p.Status == models.ProposalStatusPending {
			p.Status = models.ProposalStatusWithdrawn
		}
	}
	return nil
}

func (m *mockProposals) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Proposal
	for _, p := range m.byID {
		if p.JobID == jobID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProposals) ListByWorker(_ context.Context, workerID uuid.UUID) ([]*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Proposal
	for _, p := range m.byID {
		if p.WorkerID == workerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProposals) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

// ---

type mockJobs struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Job
}

func newMockJobs() *mockJobs { return &mockJobs{byID: make(map[uuid.UUID]*models.Job)} }

func (m *mockJobs) seed(clientID uuid.UUID, status string) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &models.Job{ID: uuid.New(), ClientID: clientID, Status: status}
	m.byID[j.ID] = j
	cp := *j
	return &cp
}

func (m *mockJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobs) GetByIDTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return m.GetByID(ctx, id)
}

// ---

type mockContracts struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*models.Contract // keyed by job ID
	busy   map[uuid.UUID]bool
}

func newMockContracts() *mockContracts {
	return &mockContracts{drafts: make(map[uuid.UUID]*models.Contract), busy: make(map[uuid.UUID]bool)}
}

func (m *mockContracts) seedDraft(jobID, clientID uuid.UUID) *models.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Contract{ID: uuid.New(), JobID: jobID, ClientID: clientID, Status: models.ContractStatusDraft}
	m.drafts[jobID] = c
	cp := *c
	return &cp
}

func (m *mockContracts) HasActiveByWorker(_ context.Context, workerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[workerID], nil
}

func (m *mockContracts) GetDraftByJobTx(_ context.Context, _ pgx.Tx, jobID uuid.UUID) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.drafts[jobID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

// mockActivator stands in for the contracts service inside Accept.
type mockActivator struct {
	mu        sync.Mutex
	activated map[uuid.UUID]uuid.UUID // contract ID -> worker ID
	fail      error
}

func (m *mockActivator) ActivateOnHireTx(_ context.Context, _ pgx.Tx, contractID, workerID uuid.UUID) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if m.activated == nil {
		m.activated = make(map[uuid.UUID]uuid.UUID)
	}
	m.activated[contractID] = workerID
	w := workerID
	return &models.Contract{ID: contractID, WorkerID: &w, Status: models.ContractStatusActive}, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, uuid.UUID, string, string, string, map[string]any) {}

// ---

type fixture struct {
	svc       *Service
	proposals *mockProposals
	jobs      *mockJobs
	contracts *mockContracts
	activator *mockActivator
}

func newFixture() *fixture {
	f := &fixture{
		proposals: newMockProposals(),
		jobs:      newMockJobs(),
		contracts: newMockContracts(),
		activator: &mockActivator{},
	}
	f.svc = NewService(fakeDB{}, f.proposals, f.jobs, f.contracts, f.activator, noopNotifier{}, nil)
	return f
}

func TestCreateProposal(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	job := f.jobs.seed(client, models.JobStatusOpen)

	p, err := f.svc.Create(context.Background(), job.ID, worker, "I can do this", 3000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != models.ProposalStatusPending {
		t.Errorf("status: got %s, want PENDING", p.Status)
	}

	// One application per worker per job.
	if _, err := f.svc.Create(context.Background(), job.ID, worker, "again", 2500); !errors.Is(err, ErrAlreadyApplied) {
		t.Errorf("expected ErrAlreadyApplied, got: %v", err)
	}
}

func TestCreateProposalGuards(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	openJob := f.jobs.seed(client, models.JobStatusOpen)
	closedJob := f.jobs.seed(client, models.JobStatusInProgress)

	if _, err := f.svc.Create(context.Background(), uuid.New(), worker, "c", 100); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("missing job: expected ErrJobNotFound, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), closedJob.ID, worker, "c", 100); !errors.Is(err, ErrJobNotOpen) {
		t.Errorf("closed job: expected ErrJobNotOpen, got %v", err)
	}

	busyWorker := uuid.New()
	f.contracts.busy[busyWorker] = true
	if _, err := f.svc.Create(context.Background(), openJob.ID, busyWorker, "c", 100); !errors.Is(err, ErrWorkerBusyCannotApply) {
		t.Errorf("busy worker: expected ErrWorkerBusyCannotApply, got %v", err)
	}
}

func TestAcceptActivatesDraftAndWithdrawsRivalApplications(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	job := f.jobs.seed(client, models.JobStatusOpen)
	otherJob := f.jobs.seed(uuid.New(), models.JobStatusOpen)
	draft := f.contracts.seedDraft(job.ID, client)

	p, err := f.svc.Create(context.Background(), job.ID, worker, "pick me", 3000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	other, err := f.svc.Create(context.Background(), otherJob.ID, worker, "or here", 1000)
	if err != nil {
		t.Fatalf("Create other: %v", err)
	}

	res, err := f.svc.Accept(context.Background(), p.ID, client)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.Proposal.Status != models.ProposalStatusAccepted {
		t.Errorf("proposal status: got %s, want ACCEPTED", res.Proposal.Status)
	}
	if res.Contract.Status != models.ContractStatusActive {
		t.Errorf("contract status: got %s, want ACTIVE", res.Contract.Status)
	}
	if got := f.activator.activated[draft.ID]; got != worker {
		t.Errorf("draft should be activated for the hired worker, got %s", got)
	}
	// The hired worker's other pending application is withdrawn.
	if got := f.proposals.status(other.ID); got != models.ProposalStatusWithdrawn {
		t.Errorf("rival proposal: got %s, want WITHDRAWN", got)
	}

	// Accepting twice fails: the proposal is no longer pending.
	if _, err := f.svc.Accept(context.Background(), p.ID, client); !errors.Is(err, ErrProposalNotPending) {
		t.Errorf("expected ErrProposalNotPending, got: %v", err)
	}
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	job := f.jobs.seed(client, models.JobStatusOpen)
	f.contracts.seedDraft(job.ID, client)

	p, err := f.svc.Create(context.Background(), job.ID, worker, "c", 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Accept(context.Background(), uuid.New(), client); !errors.Is(err, ErrProposalNotFound) {
		t.Errorf("missing proposal: expected ErrProposalNotFound, got %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), p.ID, uuid.New()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner: expected ErrUnauthorized, got %v", err)
	}
	// Proposal stays pending after failed accepts.
	if got := f.proposals.status(p.ID); got != models.ProposalStatusPending {
		t.Errorf("proposal after failed accepts: got %s, want PENDING", got)
	}
}

func TestAcceptRollsBackOnActivationFailure(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	job := f.jobs.seed(client, models.JobStatusOpen)
	f.contracts.seedDraft(job.ID, client)

	p, err := f.svc.Create(context.Background(), job.ID, worker, "c", 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	wantErr := errors.New("activation failed")
	f.activator.fail = wantErr
	if _, err := f.svc.Accept(context.Background(), p.ID, client); !errors.Is(err, wantErr) {
		t.Fatalf("expected activation error, got: %v", err)
	}
	if got := f.proposals.status(p.ID); got != models.ProposalStatusPending {
		t.Errorf("proposal after failed activation: got %s, want PENDING", got)
	}
}

func TestAcceptWithoutDraft(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	job := f.jobs.seed(client, models.JobStatusOpen)

	p, err := f.svc.Create(context.Background(), job.ID, worker, "c", 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), p.ID, client); !errors.Is(err, ErrContractNotFound) {
		t.Errorf("expected ErrContractNotFound, got: %v", err)
	}
}
