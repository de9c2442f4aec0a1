package flow

import "github.com/shaiso/Cascade/internal/domain"

// Eligible возвращает шаги, готовые к выполнению.
//
// Чистая функция: вычисляет eligibility каждого незавершённого шага
// по его trigger'у относительно CompletionRecord. Никаких побочных
// эффектов; два вызова с одной трассой дают одинаковый результат.
//
// Порядок результата — порядок шагов в steps (порядок регистрации),
// это контрактный tie-break для детерминизма.
func Eligible(record *domain.CompletionRecord, steps []domain.Step) []domain.Step {
	eligible := make([]domain.Step, 0)

	for i := range steps {
		step := &steps[i]

		if record.Contains(step.ID) {
			continue
		}

		if Satisfied(step.Trigger, record) {
			eligible = append(eligible, *step)
		}
	}

	return eligible
}

// Satisfied проверяет, удовлетворён ли trigger относительно трассы.
//
//   - start: всегда
//   - after(p): p завершён
//   - any_of(P): завершён хотя бы один из P
//   - all_of(P): завершены все из P
//   - on_branch(r, label): r завершён и вернул именно label
//
// Неудовлетворимый trigger (router вернул другую метку) — не ошибка:
// такой шаг намеренно отсекается веткой и никогда не станет eligible.
func Satisfied(t domain.Trigger, record *domain.CompletionRecord) bool {
	switch t.Kind {
	case domain.TriggerStart:
		return true

	case domain.TriggerAfter:
		return len(t.Steps) == 1 && record.Contains(t.Steps[0])

	case domain.TriggerAnyOf:
		for _, p := range t.Steps {
			if record.Contains(p) {
				return true
			}
		}
		return false

	case domain.TriggerAllOf:
		for _, p := range t.Steps {
			if !record.Contains(p) {
				return false
			}
		}
		return len(t.Steps) > 0

	case domain.TriggerOnBranch:
		label, completed := record.BranchLabel(t.Router)
		return completed && label == t.Label

	default:
		return false
	}
}

// Unreached классифицирует незавершённые шаги после того, как
// eligible-множество опустело.
//
// Шаг считается прунированным, если его trigger уже никогда не может
// быть удовлетворён из-за исхода ветвления:
//   - on_branch, чей router завершился с другой меткой
//   - шаг, достижимый только через прунированные шаги (транзитивно):
//     after/all_of с прунированным предшественником, any_of со всеми
//     прунированными предшественниками
//
// Прунированные шаги не блокируют статус COMPLETED. Непрунированный
// незавершённый шаг означает deadlock.
func Unreached(record *domain.CompletionRecord, steps []domain.Step) []domain.UnreachedStep {
	pruned := prunedSet(record, steps)

	var out []domain.UnreachedStep
	for i := range steps {
		step := &steps[i]
		if record.Contains(step.ID) {
			continue
		}

		out = append(out, domain.UnreachedStep{
			StepID:  step.ID,
			Trigger: step.Trigger,
			Missing: missingPredecessors(step.Trigger, record),
			Pruned:  pruned[step.ID],
		})
	}
	return out
}

// AllPruned возвращает true, если каждый незавершённый шаг прунирован.
func AllPruned(unreached []domain.UnreachedStep) bool {
	for i := range unreached {
		if !unreached[i].Pruned {
			return false
		}
	}
	return true
}

// prunedSet вычисляет множество прунированных шагов до неподвижной точки.
func prunedSet(record *domain.CompletionRecord, steps []domain.Step) map[string]bool {
	pruned := make(map[string]bool)

	changed := true
	for changed {
		changed = false

		for i := range steps {
			step := &steps[i]
			if record.Contains(step.ID) || pruned[step.ID] {
				continue
			}
			if neverSatisfiable(step.Trigger, record, pruned) {
				pruned[step.ID] = true
				changed = true
			}
		}
	}

	return pruned
}

// neverSatisfiable проверяет, что trigger уже не может быть удовлетворён
// при данной трассе и данном множестве прунированных шагов.
func neverSatisfiable(t domain.Trigger, record *domain.CompletionRecord, pruned map[string]bool) bool {
	switch t.Kind {
	case domain.TriggerAfter:
		return len(t.Steps) == 1 && pruned[t.Steps[0]]

	case domain.TriggerAnyOf:
		if len(t.Steps) == 0 {
			return false
		}
		for _, p := range t.Steps {
			if record.Contains(p) || !pruned[p] {
				return false
			}
		}
		return true

	case domain.TriggerAllOf:
		for _, p := range t.Steps {
			if pruned[p] {
				return true
			}
		}
		return false

	case domain.TriggerOnBranch:
		if pruned[t.Router] {
			return true
		}
		label, completed := record.BranchLabel(t.Router)
		return completed && label != t.Label

	default:
		return false
	}
}

// missingPredecessors возвращает предшественников, отсутствующих в трассе.
func missingPredecessors(t domain.Trigger, record *domain.CompletionRecord) []string {
	var missing []string
	for _, p := range t.Predecessors() {
		if !record.Contains(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
