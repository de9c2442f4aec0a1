package flow

import (
	"fmt"

	"github.com/shaiso/Cascade/internal/domain"
)

// Registry — реестр шагов flow.
//
// Registry — builder: шаги регистрируются по одному, затем Finalize
// выполняет полную проверку графа (разрешение ссылок, ацикличность)
// и замораживает registry. После Finalize регистрация невозможна,
// шаги неизменяемы.
//
// Порядок регистрации значим: он определяет tie-break при выборе
// eligible шагов в раунде и делает трассы воспроизводимыми.
type Registry struct {
	steps     []domain.Step
	index     map[string]int // stepID → позиция в steps
	strict    bool
	finalized bool
}

// NewRegistry создаёт registry с отложенной валидацией ссылок:
// trigger может ссылаться на ещё не зарегистрированный шаг,
// проверка выполняется в Finalize.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// NewStrictRegistry создаёт registry со строгой валидацией:
// trigger, ссылающийся на незарегистрированный шаг, отклоняется
// сразу при Register. Forward references запрещены.
func NewStrictRegistry() *Registry {
	return &Registry{
		index:  make(map[string]int),
		strict: true,
	}
}

// Register добавляет шаг в registry.
//
// Возвращает ошибку при пустом ID, nil handler'е, дубликате ID,
// некорректном trigger'е или (в strict режиме) ссылке на
// незарегистрированный шаг.
func (r *Registry) Register(step domain.Step) error {
	if r.finalized {
		return ErrFinalized
	}

	if step.ID == "" {
		return NewBuildError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if step.Handler == nil {
		return NewBuildError(step.ID, "handler", "step has nil handler", ErrNilHandler)
	}

	if _, exists := r.index[step.ID]; exists {
		return NewBuildError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStep)
	}

	if err := r.validateTrigger(&step); err != nil {
		return err
	}

	r.index[step.ID] = len(r.steps)
	r.steps = append(r.steps, step)
	return nil
}

// validateTrigger проверяет форму trigger'а и (в strict режиме)
// разрешимость его ссылок.
func (r *Registry) validateTrigger(step *domain.Step) error {
	t := step.Trigger

	switch t.Kind {
	case domain.TriggerStart:
		if len(t.Steps) > 0 || t.Router != "" {
			return NewBuildError(step.ID, "trigger",
				"start trigger must not reference steps", ErrInvalidTrigger)
		}

	case domain.TriggerAfter:
		if len(t.Steps) != 1 {
			return NewBuildError(step.ID, "trigger",
				"after trigger requires exactly one predecessor", ErrInvalidTrigger)
		}

	case domain.TriggerAnyOf, domain.TriggerAllOf:
		if len(t.Steps) == 0 {
			return NewBuildError(step.ID, "trigger",
				fmt.Sprintf("%s trigger requires at least one predecessor", t.Kind),
				ErrInvalidTrigger)
		}

	case domain.TriggerOnBranch:
		if t.Router == "" || t.Label == "" {
			return NewBuildError(step.ID, "trigger",
				"on_branch trigger requires router and label", ErrInvalidTrigger)
		}

	default:
		return NewBuildError(step.ID, "trigger",
			fmt.Sprintf("unknown trigger kind: %s", t.Kind), ErrInvalidTrigger)
	}

	for _, pred := range t.Predecessors() {
		if pred == step.ID {
			return NewBuildError(step.ID, "trigger",
				"step triggers on itself", ErrSelfReference)
		}
		if r.strict {
			if _, exists := r.index[pred]; !exists {
				return NewBuildError(step.ID, "trigger",
					fmt.Sprintf("references unregistered step: %s", pred), ErrInvalidTrigger)
			}
		}
	}

	return nil
}

// Finalize выполняет полную проверку графа и замораживает registry.
//
// Проверяет:
// - Все ссылки trigger'ов разрешаются в зарегистрированные шаги
// - on_branch ссылается на шаг с IsRouter=true
// - Граф предшественников ацикличен (различие меток on_branch
//   не учитывается)
//
// При обнаружении цикла возвращает CycleError с именованным циклом.
// Registry, не прошедший Finalize, не может быть выполнен runner'ом.
func (r *Registry) Finalize() error {
	if r.finalized {
		return nil
	}

	// 1. Разрешение ссылок
	for i := range r.steps {
		step := &r.steps[i]
		for _, pred := range step.Trigger.Predecessors() {
			pos, exists := r.index[pred]
			if !exists {
				return NewBuildError(step.ID, "trigger",
					fmt.Sprintf("references unknown step: %s", pred), ErrInvalidTrigger)
			}
			if step.Trigger.Kind == domain.TriggerOnBranch && !r.steps[pos].IsRouter {
				return NewBuildError(step.ID, "trigger",
					fmt.Sprintf("on_branch references non-router step: %s", pred), ErrNotRouter)
			}
		}
	}

	// 2. Проверка на циклы (алгоритм Кана)
	if cycle := r.findCycle(); cycle != nil {
		return cycle
	}

	r.finalized = true
	return nil
}

// findCycle выполняет топологическую сортировку по Кану.
// Возвращает CycleError, если не все шаги удалось упорядочить.
func (r *Registry) findCycle() *CycleError {
	inDegree := make(map[string]int, len(r.steps))
	dependents := make(map[string][]string, len(r.steps))

	for i := range r.steps {
		step := &r.steps[i]
		preds := step.Trigger.Predecessors()
		inDegree[step.ID] = len(preds)
		for _, pred := range preds {
			dependents[pred] = append(dependents[pred], step.ID)
		}
	}

	queue := make([]string, 0, len(r.steps))
	for i := range r.steps {
		if inDegree[r.steps[i].ID] == 0 {
			queue = append(queue, r.steps[i].ID)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if processed == len(r.steps) {
		return nil
	}

	// Остались шаги с inDegree > 0 — среди них есть цикл.
	// Находим его обходом по предшественникам.
	return &CycleError{Cycle: r.traceCycle(inDegree)}
}

// traceCycle находит конкретный цикл среди шагов с ненулевым inDegree.
func (r *Registry) traceCycle(inDegree map[string]int) []string {
	remaining := make(map[string]bool)
	for id, deg := range inDegree {
		if deg > 0 {
			remaining[id] = true
		}
	}

	// Идём по предшественникам, оставаясь внутри remaining,
	// пока не встретим уже посещённый шаг — это начало цикла.
	var start string
	for i := range r.steps {
		if remaining[r.steps[i].ID] {
			start = r.steps[i].ID
			break
		}
	}

	visited := make(map[string]int) // stepID → позиция в path
	path := []string{}
	current := start
	for {
		if pos, seen := visited[current]; seen {
			cycle := append([]string{}, path[pos:]...)
			cycle = append(cycle, current)
			return cycle
		}
		visited[current] = len(path)
		path = append(path, current)

		next := ""
		step := r.steps[r.index[current]]
		for _, pred := range step.Trigger.Predecessors() {
			if remaining[pred] {
				next = pred
				break
			}
		}
		if next == "" {
			// Не должно происходить: шаг в remaining имеет
			// хотя бы одного предшественника в remaining.
			return path
		}
		current = next
	}
}

// IsFinalized возвращает true, если registry финализирован.
func (r *Registry) IsFinalized() bool {
	return r.finalized
}

// Steps возвращает копию списка шагов в порядке регистрации.
func (r *Registry) Steps() []domain.Step {
	out := make([]domain.Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Get возвращает шаг по ID.
func (r *Registry) Get(id string) (domain.Step, bool) {
	pos, exists := r.index[id]
	if !exists {
		return domain.Step{}, false
	}
	return r.steps[pos], true
}

// Len возвращает количество зарегистрированных шагов.
func (r *Registry) Len() int {
	return len(r.steps)
}
