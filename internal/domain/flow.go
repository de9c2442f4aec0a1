package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flow — именованное определение рабочего процесса.
//
// Flow хранит декларативный документ (JSON или YAML) с описанием шагов,
// триггеров и конфигураций. Документ парсится пакетом flowspec при каждом
// запуске — так изменения flow подхватываются без перезапуска сервиса.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя flow (например, "enrich-orders").
	Name string `json:"name"`

	// Document — исходный декларативный документ (JSON или YAML).
	Document string `json:"document"`

	// CronExpr — cron-выражение для автоматического запуска.
	// Пустая строка — flow запускается только вручную.
	CronExpr string `json:"cron_expr,omitempty"`

	// NextDueAt — время следующего запуска по расписанию.
	// Scheduler создаёт run, когда now >= NextDueAt.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// IsActive — флаг активности. Неактивные flows не запускаются
	// по расписанию.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания flow.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSchedule возвращает true, если flow запускается по расписанию.
func (f *Flow) HasSchedule() bool {
	return f.CronExpr != ""
}

// IsDue проверяет, пора ли запускать flow по расписанию.
func (f *Flow) IsDue(now time.Time) bool {
	if !f.IsActive || !f.HasSchedule() {
		return false
	}
	if f.NextDueAt == nil {
		return false
	}
	return now.After(*f.NextDueAt) || now.Equal(*f.NextDueAt)
}

// RecordScheduledRun записывает время следующего запуска.
func (f *Flow) RecordScheduledRun(nextDue time.Time) {
	f.NextDueAt = &nextDue
	f.UpdatedAt = time.Now()
}
