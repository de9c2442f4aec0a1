package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
)

// Flow DTOs

// CreateFlowRequest — запрос на создание flow.
type CreateFlowRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	CronExpr string `json:"cron_expr,omitempty"`
	IsActive bool   `json:"is_active"`
}

// UpdateFlowRequest — запрос на обновление flow.
// Nil-поля не меняются.
type UpdateFlowRequest struct {
	Document *string `json:"document,omitempty"`
	CronExpr *string `json:"cron_expr,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// FlowResponse — ответ с flow.
type FlowResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Document  string     `json:"document"`
	CronExpr  string     `json:"cron_expr,omitempty"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FlowFromDomain конвертирует domain.Flow в FlowResponse.
func FlowFromDomain(f domain.Flow) FlowResponse {
	return FlowResponse{
		ID:        f.ID,
		Name:      f.Name,
		Document:  f.Document,
		CronExpr:  f.CronExpr,
		NextDueAt: f.NextDueAt,
		IsActive:  f.IsActive,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Run DTOs

// CreateRunRequest — запрос на запуск flow.
type CreateRunRequest struct {
	InitialState   map[string]any `json:"initial_state,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID             uuid.UUID                `json:"id"`
	FlowName       string                   `json:"flow_name"`
	Status         string                   `json:"status"`
	InitialState   map[string]any           `json:"initial_state,omitempty"`
	FinalState     map[string]any           `json:"final_state,omitempty"`
	Trace          []domain.CompletionEntry `json:"trace,omitempty"`
	Unreached      []domain.UnreachedStep   `json:"unreached,omitempty"`
	Error          string                   `json:"error,omitempty"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	FinishedAt     *time.Time               `json:"finished_at,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		FlowName:       r.FlowName,
		Status:         string(r.Status),
		InitialState:   r.InitialState,
		FinalState:     r.FinalState,
		Trace:          r.Trace,
		Unreached:      r.Unreached,
		Error:          r.Error,
		IdempotencyKey: r.IdempotencyKey,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		CreatedAt:      r.CreatedAt,
	}
}
