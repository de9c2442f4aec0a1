package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ DEADLOCKED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — все непрунированные шаги завершены успешно.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusDeadlocked — ни один шаг не может стать eligible,
	// но незавершённые (и непрунированные) шаги остались.
	// Это легитимный терминальный исход, а не ошибка процесса.
	RunStatusDeadlocked RunStatus = "DEADLOCKED"

	// RunStatusFailed — handler вернул ошибку, произошёл конфликт state
	// или run был отменён (cause=cancelled).
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusDeadlocked, RunStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s RunStatus) String() string {
	return string(s)
}
