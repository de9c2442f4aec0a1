package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// --- In-memory фейки ---

type fakeFlowStore struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*domain.Flow

	listErr error
}

func newFakeFlowStore(flows ...*domain.Flow) *fakeFlowStore {
	s := &fakeFlowStore{flows: make(map[uuid.UUID]*domain.Flow)}
	for _, f := range flows {
		s.flows[f.ID] = f
	}
	return s
}

func (s *fakeFlowStore) ListDue(_ context.Context, now time.Time) ([]domain.Flow, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Flow
	for _, f := range s.flows {
		if f.IsDue(now) {
			due = append(due, *f)
		}
	}
	return due, nil
}

func (s *fakeFlowStore) UpdateNextDue(_ context.Context, id uuid.UUID, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return repo.ErrNotFound
	}
	flow.NextDueAt = &nextDue
	return nil
}

type fakeRunStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*domain.Run
	createErr map[string]error // flow_name -> ошибка Create
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*domain.Run)}
}

func (s *fakeRunStore) Create(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[run.FlowName]; err != nil {
		return err
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *fakeRunStore) GetByIdempotencyKey(_ context.Context, flowName, key string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.FlowName == flowName && run.IdempotencyKey == key {
			copied := *run
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeRunStore) all() []domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Run
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out
}

type fakeRequestedPublisher struct {
	mu     sync.Mutex
	runIDs []uuid.UUID
}

func (p *fakeRequestedPublisher) PublishRunRequested(_ context.Context, runID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runIDs = append(p.runIDs, runID)
	return nil
}

// --- Helpers ---

func dueFlow(name string, nextDue time.Time) *domain.Flow {
	return &domain.Flow{
		ID:        uuid.New(),
		Name:      name,
		Document:  "steps: []",
		CronExpr:  "0 * * * *",
		NextDueAt: &nextDue,
		IsActive:  true,
	}
}

// --- Tests ---

func TestTick_CreatesRunForDueFlow(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	flow := dueFlow("nightly-report", past)
	flows := newFakeFlowStore(flow)
	runs := newFakeRunStore()
	pub := &fakeRequestedPublisher{}

	sched := New(Config{FlowStore: flows, RunStore: runs, Publisher: pub})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	created := runs.all()
	if len(created) != 1 {
		t.Fatalf("expected 1 run, got %d", len(created))
	}
	run := created[0]
	if run.FlowName != "nightly-report" {
		t.Errorf("unexpected flow name: %s", run.FlowName)
	}
	if run.Status != domain.RunStatusPending {
		t.Errorf("expected PENDING, got %s", run.Status)
	}
	if run.IdempotencyKey == "" {
		t.Error("idempotency key must be set for scheduled runs")
	}

	if len(pub.runIDs) != 1 || pub.runIDs[0] != run.ID {
		t.Errorf("run.requested should be published for the created run: %v", pub.runIDs)
	}

	// next_due_at уходит в будущее — flow перестаёт быть due
	if flow.NextDueAt == nil || !flow.NextDueAt.After(time.Now()) {
		t.Errorf("next_due_at should advance past now, got %v", flow.NextDueAt)
	}
}

func TestTick_NoDueFlows(t *testing.T) {
	future := time.Now().Add(time.Hour)
	flows := newFakeFlowStore(dueFlow("later", future))
	runs := newFakeRunStore()

	sched := New(Config{FlowStore: flows, RunStore: runs})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(runs.all()) != 0 {
		t.Errorf("no runs should be created before next_due_at")
	}
}

func TestTick_IdempotentAcrossDoubleTick(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	flow := dueFlow("hourly-sync", past)
	flows := newFakeFlowStore(flow)
	runs := newFakeRunStore()

	sched := New(Config{FlowStore: flows, RunStore: runs})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Второй тик того же слота: возвращаем next_due_at назад, имитируя
	// второй экземпляр планировщика, не увидевший обновления
	flow.NextDueAt = &past
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if got := len(runs.all()); got != 1 {
		t.Errorf("expected exactly 1 run for one schedule slot, got %d", got)
	}
}

func TestTick_OneFailureDoesNotBlockOthers(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	broken := dueFlow("broken", past)
	healthy := dueFlow("healthy", past)
	flows := newFakeFlowStore(broken, healthy)

	runs := newFakeRunStore()
	runs.createErr = map[string]error{"broken": errors.New("insert failed")}

	sched := New(Config{FlowStore: flows, RunStore: runs})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	created := runs.all()
	if len(created) != 1 || created[0].FlowName != "healthy" {
		t.Errorf("healthy flow should still produce a run: %+v", created)
	}
}

func TestTick_ListDueError(t *testing.T) {
	flows := newFakeFlowStore()
	flows.listErr = errors.New("db down")

	sched := New(Config{FlowStore: flows, RunStore: newFakeRunStore()})
	if err := sched.Tick(context.Background()); err == nil {
		t.Error("expected error when listing due flows fails")
	}
}

func TestTick_InvalidCronLeavesNextDueUntouched(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	flow := dueFlow("typo", past)
	flow.CronExpr = "not a cron"
	flows := newFakeFlowStore(flow)
	runs := newFakeRunStore()

	sched := New(Config{FlowStore: flows, RunStore: runs})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Run создан, но next_due_at не сдвинут
	if len(runs.all()) != 1 {
		t.Fatalf("run should still be created, got %d", len(runs.all()))
	}
	if !flow.NextDueAt.Equal(past) {
		t.Errorf("next_due_at must stay put for invalid cron, got %v", flow.NextDueAt)
	}
}

func TestTick_WithoutPublisher(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	flows := newFakeFlowStore(dueFlow("quiet", past))
	runs := newFakeRunStore()

	sched := New(Config{FlowStore: flows, RunStore: runs})
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick without publisher must not fail: %v", err)
	}
	if len(runs.all()) != 1 {
		t.Errorf("run should be created without a publisher")
	}
}
