package domain

import (
	"fmt"
	"strings"
)

// TriggerKind — вид условия запуска шага.
type TriggerKind string

const (
	// TriggerStart — шаг без предшественников, eligible с первого раунда.
	TriggerStart TriggerKind = "start"

	// TriggerAfter — шаг eligible после завершения одного названного шага.
	TriggerAfter TriggerKind = "after"

	// TriggerAnyOf — OR-семантика: eligible, когда завершён хотя бы один
	// из названных шагов.
	TriggerAnyOf TriggerKind = "any_of"

	// TriggerAllOf — AND-семантика: eligible, когда завершены все
	// названные шаги.
	TriggerAllOf TriggerKind = "all_of"

	// TriggerOnBranch — шаг eligible, когда названный router завершился
	// и вернул именно эту метку ветки.
	TriggerOnBranch TriggerKind = "on_branch"
)

// Trigger — условие, определяющее eligibility шага.
//
// Trigger — tagged variant: интерпретация полей зависит от Kind.
// Для After/AnyOf/AllOf используется Steps, для OnBranch — Router и Label.
type Trigger struct {
	// Kind — вид условия.
	Kind TriggerKind `json:"kind"`

	// Steps — предшественники (для after/any_of/all_of).
	Steps []string `json:"steps,omitempty"`

	// Router — ID router-шага (для on_branch).
	Router string `json:"router,omitempty"`

	// Label — метка ветки, которую должен вернуть router (для on_branch).
	Label string `json:"label,omitempty"`
}

// Start создаёт trigger без предшественников.
func Start() Trigger {
	return Trigger{Kind: TriggerStart}
}

// After создаёт trigger с одним предшественником.
func After(step string) Trigger {
	return Trigger{Kind: TriggerAfter, Steps: []string{step}}
}

// AnyOf создаёт trigger с OR-семантикой.
func AnyOf(steps ...string) Trigger {
	return Trigger{Kind: TriggerAnyOf, Steps: steps}
}

// AllOf создаёт trigger с AND-семантикой.
func AllOf(steps ...string) Trigger {
	return Trigger{Kind: TriggerAllOf, Steps: steps}
}

// OnBranch создаёт trigger, привязанный к метке ветки router-шага.
func OnBranch(router, label string) Trigger {
	return Trigger{Kind: TriggerOnBranch, Router: router, Label: label}
}

// Predecessors возвращает ID всех шагов, на которые ссылается trigger.
// Для OnBranch это router (различие меток здесь не учитывается).
func (t Trigger) Predecessors() []string {
	switch t.Kind {
	case TriggerStart:
		return nil
	case TriggerOnBranch:
		return []string{t.Router}
	default:
		return t.Steps
	}
}

// String возвращает человекочитаемое представление trigger
// для диагностики (deadlock отчёты, graph listing).
func (t Trigger) String() string {
	switch t.Kind {
	case TriggerStart:
		return "start"
	case TriggerAfter:
		if len(t.Steps) == 1 {
			return fmt.Sprintf("after(%s)", t.Steps[0])
		}
		return fmt.Sprintf("after(%s)", strings.Join(t.Steps, ","))
	case TriggerAnyOf:
		return fmt.Sprintf("any_of(%s)", strings.Join(t.Steps, ","))
	case TriggerAllOf:
		return fmt.Sprintf("all_of(%s)", strings.Join(t.Steps, ","))
	case TriggerOnBranch:
		return fmt.Sprintf("on_branch(%s=%q)", t.Router, t.Label)
	default:
		return string(t.Kind)
	}
}
