package disputes

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks. These let us test the real arbitration logic without a
// database.
// ---------------------------------------------------------------------------

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// ---

type mockDisputes struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Dispute
}

func newMockDisputes() *mockDisputes {
	return &mockDisputes{byID: make(map[uuid.UUID]*models.Dispute)}
}

func (m *mockDisputes) CreateTx(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *mockDisputes) get(id uuid.UUID) (*models.Dispute, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *mockDisputes) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *mockDisputes) ResolveTx(_ context.Context, _ pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok || d.Status != models.DisputeStatusOpen {
		return false, nil
	}
	d.Status = models.DisputeStatusResolved
	res, by := resolution, resolvedBy
	d.Resolution = &res
	d.ResolvedBy = &by
	return true, nil
}

// ---

type mockContracts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Contract
}

func newMockContracts() *mockContracts {
	return &mockContracts{byID: make(map[uuid.UUID]*models.Contract)}
}

func (m *mockContracts) seed(clientID, workerID uuid.UUID, status string) *models.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := workerID
	c := &models.Contract{ID: uuid.New(), JobID: uuid.New(), ClientID: clientID, WorkerID: &w, Status: status}
	m.byID[c.ID] = c
	cp := *c
	return &cp
}

func (m *mockContracts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockContracts) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.Status = status
	return nil
}

func (m *mockContracts) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

// ---

type mockCheckpoints struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Checkpoint
}

func newMockCheckpoints() *mockCheckpoints {
	return &mockCheckpoints{byID: make(map[uuid.UUID]*models.Checkpoint)}
}

func (m *mockCheckpoints) seed(contractID uuid.UUID, amount int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.byID[id] = &models.Checkpoint{ID: id, ContractID: contractID, Amount: amount, Status: status}
}

func (m *mockCheckpoints) ListByContractTx(_ context.Context, _ pgx.Tx, contractID uuid.UUID) ([]*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Checkpoint
	for _, cp := range m.byID {
		if cp.ContractID == contractID {
			c := *cp
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockCheckpoints) CancelNonApprovedByContractTx(_ context.Context, _ pgx.Tx, contractID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.byID {
		if cp.ContractID == contractID && cp.Status != models.CheckpointStatusApproved {
			cp.Status = models.CheckpointStatusCancelled
		}
	}
	return nil
}

func (m *mockCheckpoints) ApproveNonApprovedByContractTx(_ context.Context, _ pgx.Tx, contractID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.byID {
		if cp.ContractID == contractID && cp.Status != models.CheckpointStatusApproved {
			cp.Status = models.CheckpointStatusApproved
		}
	}
	return nil
}

func (m *mockCheckpoints) countByStatus(contractID uuid.UUID, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cp := range m.byID {
		if cp.ContractID == contractID && cp.Status == status {
			n++
		}
	}
	return n
}

// ---

type mockJobs struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newMockJobs() *mockJobs { return &mockJobs{statuses: make(map[uuid.UUID]string)} }

func (m *mockJobs) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

func (m *mockJobs) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

// ---

type mockLedger struct {
	mu       sync.Mutex
	refunds  []int64
	releases []int64
}

func (m *mockLedger) RefundLockedFunds(_ context.Context, _ pgx.Tx, _ uuid.UUID, amount int64, _ string, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, amount)
	return nil
}

func (m *mockLedger) ReleaseFunds(_ context.Context, _ pgx.Tx, _, _ uuid.UUID, amount int64, _ string, _ uuid.UUID) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases = append(m.releases, amount)
	fee := amount * 5 / 100
	return amount - fee, fee, nil
}

// ---

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, uuid.UUID, string, string, string, map[string]any) {}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc         *Service
	disputes    *mockDisputes
	contracts   *mockContracts
	checkpoints *mockCheckpoints
	jobs        *mockJobs
	ledger      *mockLedger
}

func newFixture() *fixture {
	f := &fixture{
		disputes:    newMockDisputes(),
		contracts:   newMockContracts(),
		checkpoints: newMockCheckpoints(),
		jobs:        newMockJobs(),
		ledger:      &mockLedger{},
	}
	f.svc = NewService(fakeDB{}, f.disputes, f.contracts, f.checkpoints, f.jobs, f.ledger, noopNotifier{}, nil)
	return f
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOpenFreezesContract(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	contract := f.contracts.seed(client, worker, models.ContractStatusActive)

	d, err := f.svc.Open(context.Background(), contract.ID, worker, "client unresponsive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != models.DisputeStatusOpen {
		t.Errorf("dispute status: got %s, want OPEN", d.Status)
	}
	if d.RaisedBy != worker {
		t.Error("dispute should record who raised it")
	}
	if got := f.contracts.status(contract.ID); got != models.ContractStatusDisputed {
		t.Errorf("contract status: got %s, want DISPUTED", got)
	}

	// A disputed contract cannot be disputed again.
	if _, err := f.svc.Open(context.Background(), contract.ID, client, "again"); !errors.Is(err, ErrContractNotActive) {
		t.Errorf("expected ErrContractNotActive, got: %v", err)
	}
}

func TestOpenGuards(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	contract := f.contracts.seed(client, worker, models.ContractStatusActive)

	if _, err := f.svc.Open(context.Background(), contract.ID, uuid.New(), "r"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("stranger: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Open(context.Background(), uuid.New(), client, "r"); !errors.Is(err, ErrContractNotFound) {
		t.Errorf("missing contract: expected ErrContractNotFound, got %v", err)
	}
}

func TestResolveClientWins(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	contract := f.contracts.seed(client, worker, models.ContractStatusActive)
	f.checkpoints.seed(contract.ID, 1000, models.CheckpointStatusApproved)
	f.checkpoints.seed(contract.ID, 1000, models.CheckpointStatusSubmitted)
	f.checkpoints.seed(contract.ID, 1000, models.CheckpointStatusPending)

	d, err := f.svc.Open(context.Background(), contract.ID, client, "work not delivered")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	arbitrator := uuid.New()
	resolved, err := f.svc.Resolve(context.Background(), d.ID, models.ResolutionClientWins, arbitrator)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.DisputeStatusResolved {
		t.Errorf("dispute status: got %s, want RESOLVED", resolved.Status)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != arbitrator {
		t.Error("resolver should be recorded")
	}

	// Only the 2000 not yet approved is refunded; the approved 1000 stays paid.
	if len(f.ledger.refunds) != 1 || f.ledger.refunds[0] != 2000 {
		t.Fatalf("refunds: got %v, want [2000]", f.ledger.refunds)
	}
	if len(f.ledger.releases) != 0 {
		t.Errorf("releases: got %v, want none", f.ledger.releases)
	}

	if got := f.contracts.status(contract.ID); got != models.ContractStatusCancelled {
		t.Errorf("contract status: got %s, want CANCELLED", got)
	}
	if got := f.jobs.status(contract.JobID); got != models.JobStatusOpen {
		t.Errorf("job status: got %s, want OPEN", got)
	}
	if got := f.checkpoints.countByStatus(contract.ID, models.CheckpointStatusCancelled); got != 2 {
		t.Errorf("cancelled checkpoints: got %d, want 2", got)
	}
	if got := f.checkpoints.countByStatus(contract.ID, models.CheckpointStatusApproved); got != 1 {
		t.Errorf("approved checkpoints: got %d, want 1", got)
	}
}

func TestResolveWorkerWins(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	contract := f.contracts.seed(client, worker, models.ContractStatusActive)
	f.checkpoints.seed(contract.ID, 1500, models.CheckpointStatusSubmitted)
	f.checkpoints.seed(contract.ID, 500, models.CheckpointStatusPending)

	d, err := f.svc.Open(context.Background(), contract.ID, worker, "client refuses to review")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resolved, err := f.svc.Resolve(context.Background(), d.ID, models.ResolutionWorkerWins, uuid.New())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Resolution == nil || *resolved.Resolution != models.ResolutionWorkerWins {
		t.Error("resolution should be recorded")
	}

	// The full 2000 pending goes through the fee-split release path.
	if len(f.ledger.releases) != 1 || f.ledger.releases[0] != 2000 {
		t.Fatalf("releases: got %v, want [2000]", f.ledger.releases)
	}
	if len(f.ledger.refunds) != 0 {
		t.Errorf("refunds: got %v, want none", f.ledger.refunds)
	}

	if got := f.contracts.status(contract.ID); got != models.ContractStatusCompleted {
		t.Errorf("contract status: got %s, want COMPLETED", got)
	}
	if got := f.jobs.status(contract.JobID); got != models.JobStatusCompleted {
		t.Errorf("job status: got %s, want COMPLETED", got)
	}
	if got := f.checkpoints.countByStatus(contract.ID, models.CheckpointStatusApproved); got != 2 {
		t.Errorf("approved checkpoints: got %d, want 2", got)
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	f := newFixture()
	client, worker := uuid.New(), uuid.New()
	contract := f.contracts.seed(client, worker, models.ContractStatusActive)
	f.checkpoints.seed(contract.ID, 1000, models.CheckpointStatusPending)

	d, err := f.svc.Open(context.Background(), contract.ID, client, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), d.ID, models.ResolutionClientWins, uuid.New()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// The ruling binds once: a second resolution must not move funds.
	if _, err := f.svc.Resolve(context.Background(), d.ID, models.ResolutionWorkerWins, uuid.New()); !errors.Is(err, ErrDisputeAlreadyResolved) {
		t.Fatalf("expected ErrDisputeAlreadyResolved, got: %v", err)
	}
	if len(f.ledger.refunds) != 1 || len(f.ledger.releases) != 0 {
		t.Errorf("ledger after double resolve: refunds %v releases %v, want one refund only",
			f.ledger.refunds, f.ledger.releases)
	}
}

func TestResolveValidation(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Resolve(context.Background(), uuid.New(), "SPLIT", uuid.New()); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), uuid.New(), models.ResolutionClientWins, uuid.New()); !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("expected ErrDisputeNotFound, got: %v", err)
	}
}
