package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/events"
	"github.com/shaiso/Cascade/internal/repo"
)

// --- In-memory фейки хранилищ ---

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*domain.Run)}
}

func (s *fakeRunStore) add(run *domain.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *fakeRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *fakeRunStore) ListPending(_ context.Context, limit int) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Run
	for _, run := range s.runs {
		if run.Status == domain.RunStatusPending && len(pending) < limit {
			pending = append(pending, *run)
		}
	}
	return pending, nil
}

func (s *fakeRunStore) ClaimPending(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != domain.RunStatusPending {
		return repo.ErrInvalidState
	}
	run.MarkRunning()
	return nil
}

func (s *fakeRunStore) Finish(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return repo.ErrNotFound
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

type fakeFlowStore struct {
	flows map[string]*domain.Flow
}

func (s *fakeFlowStore) GetByName(_ context.Context, name string) (*domain.Flow, error) {
	flow, ok := s.flows[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return flow, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []events.RunFinishedPayload
}

func (p *fakePublisher) PublishRunFinished(_ context.Context, payload events.RunFinishedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) published() []events.RunFinishedPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.RunFinishedPayload(nil), p.payloads...)
}

// --- Helpers ---

const orderDoc = `
name: orders
steps:
  - id: seed
    type: transform
    config:
      mappings:
        stage: "ingested"
  - id: finish
    type: transform
    trigger: {on: after, step: seed}
    config:
      mappings:
        stage: "done"
`

func newPendingRun(flowName string) *domain.Run {
	return &domain.Run{
		ID:        uuid.New(),
		FlowName:  flowName,
		Status:    domain.RunStatusPending,
		CreatedAt: time.Now(),
	}
}

func newTestOrchestrator(runs RunStore, flows FlowStore, pub FinishedPublisher) *Orchestrator {
	return New(Config{
		RunStore:  runs,
		FlowStore: flows,
		Publisher: pub,
	})
}

// --- Tests ---

func TestProcessRun_Completes(t *testing.T) {
	runs := newFakeRunStore()
	flows := &fakeFlowStore{flows: map[string]*domain.Flow{
		"orders": {ID: uuid.New(), Name: "orders", Document: orderDoc, IsActive: true},
	}}
	pub := &fakePublisher{}

	run := newPendingRun("orders")
	runs.add(run)

	o := newTestOrchestrator(runs, flows, pub)
	if err := o.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("process run: %v", err)
	}

	stored, err := runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (error=%s)", stored.Status, stored.Error)
	}
	if stored.FinalState["stage"] != "done" {
		t.Errorf("final state should carry last round writes: %v", stored.FinalState)
	}
	if len(stored.Trace) != 2 {
		t.Errorf("expected 2 trace entries, got %d", len(stored.Trace))
	}
	if stored.FinishedAt == nil || stored.StartedAt == nil {
		t.Error("timestamps should be set")
	}

	published := pub.published()
	if len(published) != 1 {
		t.Fatalf("expected 1 run.finished event, got %d", len(published))
	}
	if published[0].RunID != run.ID || published[0].Status != domain.RunStatusCompleted {
		t.Errorf("unexpected event payload: %+v", published[0])
	}
	if published[0].Rounds != 2 {
		t.Errorf("expected 2 rounds in event, got %d", published[0].Rounds)
	}
}

func TestProcessRun_FlowNotFound(t *testing.T) {
	runs := newFakeRunStore()
	run := newPendingRun("ghost")
	runs.add(run)

	o := newTestOrchestrator(runs, &fakeFlowStore{flows: map[string]*domain.Flow{}}, nil)
	if err := o.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("process run: %v", err)
	}

	stored, _ := runs.GetByID(context.Background(), run.ID)
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "flow not found") {
		t.Errorf("error should name the missing flow: %s", stored.Error)
	}
}

func TestProcessRun_InvalidDocument(t *testing.T) {
	runs := newFakeRunStore()
	flows := &fakeFlowStore{flows: map[string]*domain.Flow{
		"broken": {ID: uuid.New(), Name: "broken", Document: `steps: [{id: a, type: teleport}]`},
	}}

	run := newPendingRun("broken")
	runs.add(run)

	o := newTestOrchestrator(runs, flows, nil)
	if err := o.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("process run: %v", err)
	}

	stored, _ := runs.GetByID(context.Background(), run.ID)
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "build flow") {
		t.Errorf("error should point at the document: %s", stored.Error)
	}
}

func TestProcessRun_UnknownRun(t *testing.T) {
	o := newTestOrchestrator(newFakeRunStore(), &fakeFlowStore{}, nil)

	err := o.ProcessRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestProcessRun_NotPending(t *testing.T) {
	runs := newFakeRunStore()
	run := newPendingRun("orders")
	run.Status = domain.RunStatusCompleted
	runs.add(run)

	o := newTestOrchestrator(runs, &fakeFlowStore{}, nil)

	err := o.ProcessRun(context.Background(), run.ID)
	if !errors.Is(err, ErrRunNotPending) {
		t.Errorf("expected ErrRunNotPending, got %v", err)
	}
}

func TestProcessRun_ActiveCleared(t *testing.T) {
	runs := newFakeRunStore()
	flows := &fakeFlowStore{flows: map[string]*domain.Flow{
		"orders": {ID: uuid.New(), Name: "orders", Document: orderDoc},
	}}

	run := newPendingRun("orders")
	runs.add(run)

	o := newTestOrchestrator(runs, flows, nil)
	if err := o.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("process run: %v", err)
	}

	if o.ActiveRunsCount() != 0 {
		t.Errorf("active set must be empty after completion, got %d", o.ActiveRunsCount())
	}

	// Повторный подхват завершённого run отклоняется
	err := o.ProcessRun(context.Background(), run.ID)
	if !errors.Is(err, ErrRunNotPending) {
		t.Errorf("expected ErrRunNotPending on replay, got %v", err)
	}
}

func TestProcessRun_InitialStateThreaded(t *testing.T) {
	const echoDoc = `
name: echo
steps:
  - id: reshape
    type: transform
    config:
      mappings:
        echoed: "{{ .State.input }}"
`
	runs := newFakeRunStore()
	flows := &fakeFlowStore{flows: map[string]*domain.Flow{
		"echo": {ID: uuid.New(), Name: "echo", Document: echoDoc},
	}}

	run := newPendingRun("echo")
	run.InitialState = domain.State{"input": "payload"}
	runs.add(run)

	o := newTestOrchestrator(runs, flows, nil)
	if err := o.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("process run: %v", err)
	}

	stored, _ := runs.GetByID(context.Background(), run.ID)
	if stored.FinalState["echoed"] != "payload" {
		t.Errorf("initial state must reach the handlers: %v", stored.FinalState)
	}
}
