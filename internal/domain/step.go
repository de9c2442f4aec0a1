package domain

import "context"

// State — снимок общего состояния выполнения.
//
// Единственный разделяемый мутабельный ресурс run'а. Владеет им
// state.Store; шаги получают копию и не могут мутировать оригинал.
type State map[string]any

// Delta — изменения состояния, возвращённые handler'ом.
//
// Шаг не мутирует State напрямую, а возвращает Delta — это делает
// путь обновления аудируемым и позволяет обнаруживать конфликты
// записи внутри одного раунда.
type Delta map[string]any

// Clone возвращает копию State.
// Вложенные map/slice копируются рекурсивно, чтобы handler не мог
// мутировать состояние через снимок.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Handler — opaque-функция выполнения шага.
//
// Ядро не знает, что происходит внутри: HTTP вызов, LLM, crew, задержка.
// Handler получает снимок состояния и возвращает delta и, если шаг
// является router'ом, метку выбранной ветки.
type Handler func(ctx context.Context, snapshot State) (Delta, string, error)

// Step — именованная единица работы с условием запуска.
//
// Step неизменяем после регистрации в flow.Registry.
type Step struct {
	// ID — уникальный идентификатор шага в рамках registry.
	ID string `json:"id"`

	// Trigger — условие eligibility.
	Trigger Trigger `json:"trigger"`

	// Handler — функция выполнения. Не сериализуется.
	Handler Handler `json:"-"`

	// IsRouter — true, если handler возвращает метку ветки,
	// используемую downstream-шагами через OnBranch.
	IsRouter bool `json:"is_router,omitempty"`
}
