package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrAlreadyRunning — на этом Runner уже выполняется run.
	ErrAlreadyRunning = errors.New("run already in progress")

	// ErrCancelled — run отменён вызывающей стороной.
	// Терминальный статус при этом FAILED с этой причиной.
	ErrCancelled = errors.New("run cancelled")
)

// HandlerError — ошибка, поднятая handler'ом шага.
type HandlerError struct {
	// StepID — шаг, чей handler вернул ошибку.
	StepID string

	// Err — исходная ошибка handler'а.
	Err error
}

// Error реализует интерфейс error.
func (e *HandlerError) Error() string {
	return "step " + e.StepID + ": " + e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
