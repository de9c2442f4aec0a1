package flowspec

import "errors"

// Ошибки разбора и валидации документов.
var (
	// ErrEmptySteps — документ не содержит шагов.
	ErrEmptySteps = errors.New("flow document has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownHandlerType — неизвестный тип handler'а.
	ErrUnknownHandlerType = errors.New("unknown handler type")

	// ErrInvalidTrigger — некорректное условие запуска.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrUnknownReference — trigger ссылается на несуществующий шаг.
	ErrUnknownReference = errors.New("trigger references unknown step")

	// ErrParse — документ не удалось разобрать.
	ErrParse = errors.New("flow document parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
