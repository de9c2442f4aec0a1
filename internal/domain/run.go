package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения flow.
//
// Run создаётся когда:
// - Пользователь запускает flow вручную (через API/CLI)
// - Scheduler создаёт run по расписанию
//
// Orchestrator подхватывает PENDING runs, выполняет их через runner
// и записывает итоговое состояние и трассу.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// FlowName — имя flow, который выполняется.
	FlowName string `json:"flow_name"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// InitialState — состояние, с которого начинается выполнение.
	InitialState State `json:"initial_state,omitempty"`

	// FinalState — финальное состояние после завершения.
	FinalState State `json:"final_state,omitempty"`

	// Trace — трасса завершённых шагов.
	Trace []CompletionEntry `json:"trace,omitempty"`

	// Unreached — диагностика недостигнутых шагов (deadlock/pruning).
	Unreached []UnreachedStep `json:"unreached,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Для scheduled runs: "{flow_name}_{next_due_at}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения. Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// ApplyResult записывает итог выполнения в run.
func (r *Run) ApplyResult(result *RunResult) {
	now := time.Now()
	r.Status = result.Status
	r.FinalState = result.FinalState
	r.Trace = result.Trace
	r.Unreached = result.Unreached
	r.FinishedAt = &now
	if result.Err != nil {
		r.Error = result.Err.Error()
	}
}

// MarkFailed переводит run в статус FAILED с ошибкой.
// Используется при ранних сбоях (невалидный документ, flow не найден),
// когда до runner'а дело не дошло.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
