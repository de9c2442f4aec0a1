package state

import (
	"reflect"
	"sync"

	"github.com/shaiso/Cascade/internal/domain"
)

// Store владеет единственным мутабельным состоянием run'а.
//
// Дисциплина доступа:
//   - Шаги получают снимки (Snapshot) и не видят оригинал
//   - Изменения применяются только через ApplyRound — барьерное
//     слияние дельт целого раунда под эксклюзивной блокировкой
//   - Шаг никогда не наблюдает дельту соседа по раунду
type Store struct {
	mu    sync.RWMutex
	state domain.State
}

// RoundDelta — дельта одного шага внутри раунда.
type RoundDelta struct {
	// StepID — шаг, вернувший дельту (для диагностики конфликтов).
	StepID string

	// Delta — изменения состояния.
	Delta domain.Delta
}

// NewStore создаёт Store с копией начального состояния.
func NewStore(initial domain.State) *Store {
	return &Store{
		state: initial.Clone(),
	}
}

// Snapshot возвращает глубокую копию текущего состояния.
// Снимок безопасно читать и мутировать — оригинал не изменится.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ApplyRound сливает дельты одного раунда в состояние.
//
// Перед слиянием проверяет конфликты: два шага раунда, записавшие
// разные значения в одно поле, дают ConflictError — run завершается
// с FAILED. Одинаковые значения конфликтом не считаются
// (идемпотентные записи допустимы).
//
// При конфликте состояние не изменяется вовсе: раунд атомарен.
func (s *Store) ApplyRound(deltas []RoundDelta) (domain.State, error) {
	merged := make(domain.Delta)
	writers := make(map[string]string) // field → stepID первого писателя

	for i := range deltas {
		d := &deltas[i]
		for field, value := range d.Delta {
			if first, written := writers[field]; written {
				if !reflect.DeepEqual(merged[field], value) {
					return nil, &ConflictError{
						Field:       field,
						FirstStep:   first,
						FirstValue:  merged[field],
						SecondStep:  d.StepID,
						SecondValue: value,
					}
				}
				continue
			}
			writers[field] = d.StepID
			merged[field] = value
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for field, value := range merged {
		s.state[field] = value
	}
	return s.state.Clone(), nil
}

// Final возвращает финальное состояние (копию).
// Синоним Snapshot, читающийся по месту вызова в конце run'а.
func (s *Store) Final() domain.State {
	return s.Snapshot()
}
