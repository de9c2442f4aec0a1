package flow

import (
	"errors"
	"strings"
)

// Ошибки построения registry.
var (
	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrNilHandler — шаг не имеет handler'а.
	ErrNilHandler = errors.New("step has nil handler")

	// ErrDuplicateStep — несколько шагов с одинаковым ID.
	ErrDuplicateStep = errors.New("duplicate step ID")

	// ErrInvalidTrigger — trigger ссылается на неизвестный шаг
	// или сформирован некорректно.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrSelfReference — trigger шага ссылается на сам шаг.
	ErrSelfReference = errors.New("step triggers on itself")

	// ErrCyclicDependency — обнаружен цикл в графе предшественников.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrNotRouter — on_branch ссылается на шаг, не являющийся router'ом.
	ErrNotRouter = errors.New("on_branch references non-router step")

	// ErrFinalized — registry уже финализирован, регистрация невозможна.
	ErrFinalized = errors.New("registry already finalized")

	// ErrNotFinalized — registry не финализирован, выполнение невозможно.
	ErrNotFinalized = errors.New("registry not finalized")
)

// BuildError — ошибка построения registry с контекстом.
type BuildError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *BuildError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// NewBuildError создаёт новую ошибку построения.
func NewBuildError(stepID, field, message string, err error) *BuildError {
	return &BuildError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError — ошибка циклической зависимости с именованным циклом.
type CycleError struct {
	// Cycle — шаги, образующие цикл, в порядке обхода.
	// Первый шаг повторён в конце для наглядности.
	Cycle []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

// Unwrap возвращает ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}
