package flowspec

import (
	"github.com/shaiso/Cascade/internal/domain"
)

// Document — декларативное описание flow (содержимое JSONB поля document).
//
// Сериализуется в JSON при хранении и поддерживает YAML для
// файлов, загружаемых через CLI.
type Document struct {
	// Version — версия формата документа.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Name — имя flow.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description — описание flow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Defaults — настройки по умолчанию для шагов.
	Defaults *StepDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Steps — шаги flow. Порядок объявления значим: он определяет
	// порядок регистрации и, как следствие, порядок трассы.
	Steps []StepDef `json:"steps" yaml:"steps"`
}

// StepDefaults — настройки по умолчанию для шагов.
type StepDefaults struct {
	// TimeoutSec — таймаут шага в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// StepDef — определение шага в документе.
type StepDef struct {
	// ID — уникальный идентификатор шага.
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type — тип handler'а: http, delay, transform, branch.
	Type string `json:"type" yaml:"type"`

	// Trigger — условие запуска шага.
	// Если не задан, шаг стартует с началом run'а.
	Trigger *TriggerDef `json:"trigger,omitempty" yaml:"trigger,omitempty"`

	// Config — конфигурация handler'а. Может содержать Go template
	// выражения, рендерится по снимку состояния раунда.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// TimeoutSec — таймаут шага (перекрывает Defaults).
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// TriggerDef — условие запуска шага в документе.
type TriggerDef struct {
	// On — вид условия: start, after, any_of, all_of, on_branch.
	On string `json:"on" yaml:"on"`

	// Step — предшественник для after.
	Step string `json:"step,omitempty" yaml:"step,omitempty"`

	// Steps — предшественники для any_of / all_of.
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Router — router шаг для on_branch.
	Router string `json:"router,omitempty" yaml:"router,omitempty"`

	// Label — метка ветки для on_branch.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// toDomain переводит TriggerDef в доменный Trigger.
// Вызывается после Validate: форма уже проверена.
func (t *TriggerDef) toDomain() domain.Trigger {
	if t == nil {
		return domain.Start()
	}

	switch t.On {
	case string(domain.TriggerStart):
		return domain.Start()
	case string(domain.TriggerAfter):
		return domain.After(t.Step)
	case string(domain.TriggerAnyOf):
		return domain.AnyOf(t.Steps...)
	case string(domain.TriggerAllOf):
		return domain.AllOf(t.Steps...)
	case string(domain.TriggerOnBranch):
		return domain.OnBranch(t.Router, t.Label)
	default:
		return domain.Trigger{Kind: domain.TriggerKind(t.On)}
	}
}
