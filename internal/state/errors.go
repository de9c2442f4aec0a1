package state

import (
	"errors"
	"fmt"
)

// ErrStateConflict — два шага в одном раунде записали разные значения
// в одно поле. Такой конфликт — ошибка дизайна flow и завершает run,
// а не разрешается молча.
var ErrStateConflict = errors.New("state conflict")

// ConflictError — конфликт записи с полным контекстом.
type ConflictError struct {
	// Field — поле, за которое конкурируют шаги.
	Field string

	// FirstStep и FirstValue — шаг, записавший значение первым
	// (в порядке регистрации), и само значение.
	FirstStep  string
	FirstValue any

	// SecondStep и SecondValue — конфликтующий шаг и его значение.
	SecondStep  string
	SecondValue any
}

// Error реализует интерфейс error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("field %q: step %s wrote %v, step %s wrote %v",
		e.Field, e.FirstStep, e.FirstValue, e.SecondStep, e.SecondValue)
}

// Unwrap возвращает ErrStateConflict.
func (e *ConflictError) Unwrap() error {
	return ErrStateConflict
}
