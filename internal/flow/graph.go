package flow

import "github.com/shaiso/Cascade/internal/domain"

// GraphEntry — одна вершина графа flow для внешних потребителей
// (визуализация, CLI). Read-only проекция шага без handler'а.
type GraphEntry struct {
	// StepID — идентификатор шага.
	StepID string `json:"step_id"`

	// Trigger — условие запуска.
	Trigger domain.Trigger `json:"trigger"`

	// IsRouter — признак router-шага.
	IsRouter bool `json:"is_router,omitempty"`
}

// Graph возвращает граф flow как список (шаг, trigger) пар
// в порядке регистрации.
//
// Ядро не рисует диаграмм: внешний потребитель строит визуализацию
// по этому списку сам.
func (r *Registry) Graph() []GraphEntry {
	entries := make([]GraphEntry, 0, len(r.steps))
	for i := range r.steps {
		step := &r.steps[i]
		entries = append(entries, GraphEntry{
			StepID:   step.ID,
			Trigger:  step.Trigger,
			IsRouter: step.IsRouter,
		})
	}
	return entries
}
