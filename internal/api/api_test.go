package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// --- In-memory фейки ---

type memFlowStore struct {
	flows map[string]*domain.Flow
}

func newMemFlowStore() *memFlowStore {
	return &memFlowStore{flows: make(map[string]*domain.Flow)}
}

func (s *memFlowStore) Create(_ context.Context, flow *domain.Flow) error {
	if _, ok := s.flows[flow.Name]; ok {
		return repo.ErrAlreadyExists
	}
	copied := *flow
	s.flows[flow.Name] = &copied
	return nil
}

func (s *memFlowStore) GetByName(_ context.Context, name string) (*domain.Flow, error) {
	flow, ok := s.flows[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *flow
	return &copied, nil
}

func (s *memFlowStore) List(_ context.Context) ([]domain.Flow, error) {
	var out []domain.Flow
	for _, f := range s.flows {
		out = append(out, *f)
	}
	return out, nil
}

func (s *memFlowStore) Update(_ context.Context, flow *domain.Flow) error {
	if _, ok := s.flows[flow.Name]; !ok {
		return repo.ErrNotFound
	}
	copied := *flow
	s.flows[flow.Name] = &copied
	return nil
}

func (s *memFlowStore) Delete(_ context.Context, id uuid.UUID) error {
	for name, f := range s.flows {
		if f.ID == id {
			delete(s.flows, name)
			return nil
		}
	}
	return repo.ErrNotFound
}

type memRunStore struct {
	runs map[uuid.UUID]*domain.Run
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[uuid.UUID]*domain.Run)}
}

func (s *memRunStore) Create(_ context.Context, run *domain.Run) error {
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *memRunStore) GetByIdempotencyKey(_ context.Context, flowName, key string) (*domain.Run, error) {
	for _, run := range s.runs {
		if run.FlowName == flowName && run.IdempotencyKey == key {
			copied := *run
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memRunStore) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	var out []domain.Run
	for _, run := range s.runs {
		if filter.FlowName != "" && run.FlowName != filter.FlowName {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

// --- Helpers ---

const validDoc = `
name: greet
steps:
  - id: hello
    type: transform
    config:
      mappings:
        greeting: "hi"
`

func newTestServer(t *testing.T, flows *memFlowStore, runs *memRunStore) *httptest.Server {
	t.Helper()
	h := NewHandler(Config{FlowStore: flows, RunStore: runs})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return wrapper.Data
}

// --- Tests ---

func TestCreateFlow(t *testing.T) {
	flows := newMemFlowStore()
	srv := newTestServer(t, flows, newMemRunStore())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name:     "greet",
		Document: validDoc,
		IsActive: true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	created := decodeData[FlowResponse](t, resp)
	if created.Name != "greet" || !created.IsActive {
		t.Errorf("unexpected flow: %+v", created)
	}
	if _, ok := flows.flows["greet"]; !ok {
		t.Error("flow should be persisted")
	}
}

func TestCreateFlow_InvalidDocumentRejected(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name:     "bad",
		Document: `steps: [{id: a, type: teleport}]`,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown handler type, got %d", resp.StatusCode)
	}
}

func TestCreateFlow_InvalidCronRejected(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name:     "cron-typo",
		Document: validDoc,
		CronExpr: "every tuesday",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid cron, got %d", resp.StatusCode)
	}
}

func TestCreateFlow_WithCronSetsNextDue(t *testing.T) {
	flows := newMemFlowStore()
	srv := newTestServer(t, flows, newMemRunStore())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name:     "scheduled",
		Document: validDoc,
		CronExpr: "0 * * * *",
		IsActive: true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	created := decodeData[FlowResponse](t, resp)
	if created.NextDueAt == nil || !created.NextDueAt.After(time.Now()) {
		t.Errorf("next_due_at should be in the future, got %v", created.NextDueAt)
	}
}

func TestCreateFlow_DuplicateName(t *testing.T) {
	flows := newMemFlowStore()
	srv := newTestServer(t, flows, newMemRunStore())

	req := CreateFlowRequest{Name: "dup", Document: validDoc}
	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", req); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", req); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second create: expected 409, got %d", resp.StatusCode)
	}
}

func TestGetFlow_NotFound(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/flows/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateFlow_TogglesActive(t *testing.T) {
	flows := newMemFlowStore()
	srv := newTestServer(t, flows, newMemRunStore())

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name: "toggle", Document: validDoc, IsActive: false,
	})

	active := true
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/flows/toggle", UpdateFlowRequest{IsActive: &active})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	updated := decodeData[FlowResponse](t, resp)
	if !updated.IsActive {
		t.Error("flow should be active after update")
	}
}

func TestGetFlowGraph(t *testing.T) {
	flows := newMemFlowStore()
	srv := newTestServer(t, flows, newMemRunStore())

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name: "greet", Document: validDoc,
	})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/flows/greet/graph", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	graph := decodeData[[]map[string]any](t, resp)
	if len(graph) != 1 {
		t.Fatalf("expected 1 graph entry, got %d", len(graph))
	}
	if graph[0]["step_id"] != "hello" {
		t.Errorf("unexpected graph entry: %v", graph[0])
	}
}

func TestCreateRun(t *testing.T) {
	flows := newMemFlowStore()
	runs := newMemRunStore()
	srv := newTestServer(t, flows, runs)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name: "greet", Document: validDoc,
	})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows/greet/runs", CreateRunRequest{
		InitialState: map[string]any{"who": "world"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	created := decodeData[RunResponse](t, resp)
	if created.Status != string(domain.RunStatusPending) {
		t.Errorf("expected PENDING, got %s", created.Status)
	}
	if created.InitialState["who"] != "world" {
		t.Errorf("initial state lost: %v", created.InitialState)
	}
}

func TestCreateRun_Idempotent(t *testing.T) {
	flows := newMemFlowStore()
	runs := newMemRunStore()
	srv := newTestServer(t, flows, runs)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows", CreateFlowRequest{
		Name: "greet", Document: validDoc,
	})

	req := CreateRunRequest{IdempotencyKey: "deploy-42"}
	first := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows/greet/runs", req)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", first.StatusCode)
	}
	firstRun := decodeData[RunResponse](t, first)

	second := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows/greet/runs", req)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second: expected 200 (existing run), got %d", second.StatusCode)
	}
	secondRun := decodeData[RunResponse](t, second)

	if firstRun.ID != secondRun.ID {
		t.Error("idempotency key must return the same run")
	}
	if len(runs.runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs.runs))
	}
}

func TestCreateRun_FlowNotFound(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/flows/ghost/runs", CreateRunRequest{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetRun(t *testing.T) {
	flows := newMemFlowStore()
	runs := newMemRunStore()
	srv := newTestServer(t, flows, runs)

	run := &domain.Run{
		ID:       uuid.New(),
		FlowName: "greet",
		Status:   domain.RunStatusCompleted,
		FinalState: domain.State{
			"greeting": "hi",
		},
		Trace: []domain.CompletionEntry{{StepID: "hello"}},
	}
	runs.Create(context.Background(), run)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/runs/"+run.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeData[RunResponse](t, resp)
	if got.Status != string(domain.RunStatusCompleted) {
		t.Errorf("unexpected status: %s", got.Status)
	}
	if len(got.Trace) != 1 || got.Trace[0].StepID != "hello" {
		t.Errorf("trace should be returned: %+v", got.Trace)
	}
}

func TestGetRun_InvalidID(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/runs/not-a-uuid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListRuns_FilterByStatus(t *testing.T) {
	flows := newMemFlowStore()
	runs := newMemRunStore()
	srv := newTestServer(t, flows, runs)

	runs.Create(context.Background(), &domain.Run{ID: uuid.New(), FlowName: "a", Status: domain.RunStatusCompleted})
	runs.Create(context.Background(), &domain.Run{ID: uuid.New(), FlowName: "a", Status: domain.RunStatusFailed})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/runs?status=COMPLETED", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeData[[]RunResponse](t, resp)
	if len(got) != 1 || got[0].Status != string(domain.RunStatusCompleted) {
		t.Errorf("filter should keep only COMPLETED runs: %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newMemFlowStore(), newMemRunStore())

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
