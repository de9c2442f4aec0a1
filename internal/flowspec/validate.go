package flowspec

import (
	"fmt"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/handlers"
)

// Validate выполняет полную валидацию документа.
//
// Проверяет:
//   - Наличие шагов
//   - Уникальность ID шагов
//   - Известность типов handlers (по реестру)
//   - Форму условий запуска
//   - Валидность ссылок внутри triggers
//
// Циклы и привязку on_branch к router шагам проверяет flow.Registry
// при Finalize — Build возвращает эти ошибки как есть.
func Validate(doc *Document, registry *handlers.Registry) error {
	if doc == nil || len(doc.Steps) == 0 {
		return ErrEmptySteps
	}

	stepIDs := make(map[string]bool, len(doc.Steps))

	for i := range doc.Steps {
		step := &doc.Steps[i]

		if err := validateStep(step, stepIDs, registry); err != nil {
			return err
		}
	}

	return validateReferences(doc.Steps, stepIDs)
}

// validateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func validateStep(step *StepDef, stepIDs map[string]bool, registry *handlers.Registry) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if step.Type == "" {
		return NewValidationError(step.ID, "type",
			"step has empty type", ErrUnknownHandlerType)
	}
	if !registry.Has(step.Type) {
		return NewValidationError(step.ID, "type",
			fmt.Sprintf("unknown handler type: %s", step.Type), ErrUnknownHandlerType)
	}

	return validateTrigger(step)
}

// validateTrigger проверяет форму условия запуска.
func validateTrigger(step *StepDef) error {
	t := step.Trigger
	if t == nil {
		// Отсутствующий trigger — start
		return nil
	}

	switch t.On {
	case string(domain.TriggerStart):
		if t.Step != "" || len(t.Steps) > 0 || t.Router != "" || t.Label != "" {
			return NewValidationError(step.ID, "trigger",
				"start trigger takes no references", ErrInvalidTrigger)
		}

	case string(domain.TriggerAfter):
		if t.Step == "" {
			return NewValidationError(step.ID, "trigger",
				"after trigger requires a step", ErrInvalidTrigger)
		}
		if t.Step == step.ID {
			return NewValidationError(step.ID, "trigger",
				"step triggers on itself", ErrInvalidTrigger)
		}

	case string(domain.TriggerAnyOf), string(domain.TriggerAllOf):
		if len(t.Steps) == 0 {
			return NewValidationError(step.ID, "trigger",
				t.On+" trigger requires steps", ErrInvalidTrigger)
		}
		for _, ref := range t.Steps {
			if ref == step.ID {
				return NewValidationError(step.ID, "trigger",
					"step triggers on itself", ErrInvalidTrigger)
			}
		}

	case string(domain.TriggerOnBranch):
		if t.Router == "" || t.Label == "" {
			return NewValidationError(step.ID, "trigger",
				"on_branch trigger requires router and label", ErrInvalidTrigger)
		}
		if t.Router == step.ID {
			return NewValidationError(step.ID, "trigger",
				"step triggers on itself", ErrInvalidTrigger)
		}

	default:
		return NewValidationError(step.ID, "trigger",
			fmt.Sprintf("unknown trigger kind: %s", t.On), ErrInvalidTrigger)
	}

	return nil
}

// validateReferences проверяет, что все triggers ссылаются на существующие шаги.
func validateReferences(steps []StepDef, stepIDs map[string]bool) error {
	for i := range steps {
		step := &steps[i]
		if step.Trigger == nil {
			continue
		}

		for _, ref := range step.Trigger.toDomain().Predecessors() {
			if !stepIDs[ref] {
				return NewValidationError(step.ID, "trigger",
					fmt.Sprintf("references unknown step: %s", ref), ErrUnknownReference)
			}
		}
	}

	return nil
}
