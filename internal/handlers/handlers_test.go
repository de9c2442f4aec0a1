package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register(NewDelayHandler())
	if r.Count() != 1 {
		t.Errorf("expected 1 handler, got %d", r.Count())
	}

	// Получение
	h, err := r.Get("delay")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if h.Type() != "delay" {
		t.Errorf("expected delay, got %s", h.Type())
	}

	// Несуществующий тип
	_, err = r.Get("unknown")
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("expected ErrHandlerNotFound, got %v", err)
	}

	// Has
	if !r.Has("delay") {
		t.Error("should have delay")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expectedTypes := []string{"branch", "delay", "http", "transform"}
	for _, typ := range expectedTypes {
		if !r.Has(typ) {
			t.Errorf("default registry should have %s", typ)
		}
	}

	types := r.Types()
	if len(types) != len(expectedTypes) {
		t.Errorf("expected %d types, got %d", len(expectedTypes), len(types))
	}
}

// Delay Handler Tests

func TestDelayHandler_Execute(t *testing.T) {
	h := NewDelayHandler()

	req := &Request{
		StepID: "pause",
		Config: map[string]any{"duration_ms": 50},
	}

	start := time.Now()
	resp, err := h.Execute(context.Background(), req)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if resp.Delta["pause_delayed_ms"] == nil {
		t.Error("delta should record the delay duration")
	}
}

func TestDelayHandler_Execute_Cancelled(t *testing.T) {
	h := NewDelayHandler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := &Request{
		StepID: "pause",
		Config: map[string]any{"duration_sec": 10},
	}

	_, err := h.Execute(ctx, req)
	if !errors.Is(err, ErrHandlerCancelled) {
		t.Errorf("expected ErrHandlerCancelled, got %v", err)
	}
}

func TestDelayHandler_Execute_InvalidConfig(t *testing.T) {
	h := NewDelayHandler()

	req := &Request{StepID: "pause", Config: map[string]any{}}

	_, err := h.Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// HTTP Handler Tests

func TestHTTPHandler_Execute_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	h := NewHTTPHandler()
	req := &Request{
		StepID: "fetch",
		Config: map[string]any{"url": server.URL},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Дельта — одно поле <step_id>_response
	out, ok := resp.Delta["fetch_response"].(map[string]any)
	if !ok {
		t.Fatalf("expected fetch_response in delta, got %v", resp.Delta)
	}
	if out["status_code"] != http.StatusOK {
		t.Errorf("expected 200, got %v", out["status_code"])
	}
	body, ok := out["body"].(map[string]any)
	if !ok || body["status"] != "ok" {
		t.Errorf("expected parsed JSON body, got %v", out["body"])
	}
}

func TestHTTPHandler_Execute_CustomInto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewHTTPHandler()
	req := &Request{
		StepID: "fetch",
		Config: map[string]any{"url": server.URL, "into": "upstream"},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resp.Delta["upstream"]; !ok {
		t.Errorf("expected upstream in delta, got %v", resp.Delta)
	}
}

func TestHTTPHandler_Execute_POST(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	h := NewHTTPHandler()
	req := &Request{
		StepID: "submit",
		Config: map[string]any{
			"url":    server.URL,
			"method": "post",
			"body":   map[string]any{"order_id": "42"},
		},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received["order_id"] != "42" {
		t.Errorf("server should receive the body, got %v", received)
	}
	out := resp.Delta["submit_response"].(map[string]any)
	if out["status_code"] != http.StatusCreated {
		t.Errorf("expected 201, got %v", out["status_code"])
	}
}

func TestHTTPHandler_Execute_MissingURL(t *testing.T) {
	h := NewHTTPHandler()

	_, err := h.Execute(context.Background(), &Request{StepID: "fetch", Config: map[string]any{}})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Transform Handler Tests

func TestTransformHandler_Execute(t *testing.T) {
	h := NewTransformHandler()

	req := &Request{
		StepID: "reshape",
		Config: map[string]any{
			"mappings": map[string]any{
				"greeting": "hello, {{ .State.name }}",
				"doubled":  "{{ .State.count }}{{ .State.count }}",
			},
		},
		Snapshot: domain.State{"name": "cascade", "count": 4},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Delta["greeting"] != "hello, cascade" {
		t.Errorf("unexpected greeting: %v", resp.Delta["greeting"])
	}
	// "44" парсится как число
	if resp.Delta["doubled"] != int64(44) {
		t.Errorf("expected 44, got %v (%T)", resp.Delta["doubled"], resp.Delta["doubled"])
	}
}

func TestTransformHandler_Execute_NoMappings(t *testing.T) {
	h := NewTransformHandler()

	resp, err := h.Execute(context.Background(), &Request{StepID: "reshape", Config: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Delta) != 0 {
		t.Errorf("expected empty delta, got %v", resp.Delta)
	}
}

func TestTransformHandler_Execute_BadTemplate(t *testing.T) {
	h := NewTransformHandler()

	req := &Request{
		StepID: "reshape",
		Config: map[string]any{
			"mappings": map[string]any{"bad": "{{ .State.x"},
		},
	}

	_, err := h.Execute(context.Background(), req)
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}

// Branch Handler Tests

func TestBranchHandler_Execute_FirstRuleWins(t *testing.T) {
	h := NewBranchHandler()

	simple := &Request{
		StepID: "decide",
		Config: map[string]any{
			"rules": []any{
				map[string]any{"when": ".State.is_vip", "label": "fast_track"},
				map[string]any{"when": ".State.is_new", "label": "onboarding"},
			},
			"default": "standard",
		},
		Snapshot: domain.State{"is_vip": true, "is_new": true},
	}

	resp, err := h.Execute(context.Background(), simple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Label != "fast_track" {
		t.Errorf("first matching rule must win, got %q", resp.Label)
	}
	if len(resp.Delta) != 0 {
		t.Errorf("branch must not write state, got %v", resp.Delta)
	}
}

func TestBranchHandler_Execute_Default(t *testing.T) {
	h := NewBranchHandler()

	req := &Request{
		StepID: "decide",
		Config: map[string]any{
			"rules": []any{
				map[string]any{"when": ".State.is_vip", "label": "fast_track"},
			},
			"default": "standard",
		},
		Snapshot: domain.State{"is_vip": false},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Label != "standard" {
		t.Errorf("expected default label, got %q", resp.Label)
	}
}

func TestBranchHandler_Execute_NoMatchNoDefault(t *testing.T) {
	h := NewBranchHandler()

	req := &Request{
		StepID: "decide",
		Config: map[string]any{
			"rules": []any{
				map[string]any{"when": ".State.flag", "label": "on"},
			},
		},
		Snapshot: domain.State{},
	}

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Пустая метка: все ветки router'а будут отсечены
	if resp.Label != "" {
		t.Errorf("expected empty label, got %q", resp.Label)
	}
}

func TestBranchHandler_Execute_InvalidRules(t *testing.T) {
	h := NewBranchHandler()

	cases := []struct {
		name   string
		config map[string]any
	}{
		{"no rules no default", map[string]any{}},
		{"rules not a list", map[string]any{"rules": "x"}},
		{"rule missing label", map[string]any{"rules": []any{map[string]any{"when": ".State.x"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), &Request{StepID: "decide", Config: tc.config})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

// Bind Tests

func TestBind_RendersConfigPerCall(t *testing.T) {
	h := NewTransformHandler()
	bound := Bind(h, "reshape", map[string]any{
		"mappings": map[string]any{"echo": "{{ .State.value }}"},
	}, 0)

	delta, label, err := bound(context.Background(), domain.State{"value": "first"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "" {
		t.Errorf("transform must not label, got %q", label)
	}
	if delta["echo"] != "first" {
		t.Errorf("expected first, got %v", delta["echo"])
	}

	// Повторный вызов видит другое состояние
	delta, _, err = bound(context.Background(), domain.State{"value": "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta["echo"] != "second" {
		t.Errorf("config must re-render per call, got %v", delta["echo"])
	}
}

func TestBind_PropagatesLabel(t *testing.T) {
	h := NewBranchHandler()
	bound := Bind(h, "decide", map[string]any{"default": "fallback"}, 0)

	_, label, err := bound(context.Background(), domain.State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "fallback" {
		t.Errorf("expected fallback, got %q", label)
	}
}
