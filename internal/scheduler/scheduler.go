package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// FlowStore — операции с flows, нужные планировщику.
type FlowStore interface {
	ListDue(ctx context.Context, now time.Time) ([]domain.Flow, error)
	UpdateNextDue(ctx context.Context, id uuid.UUID, nextDue time.Time) error
}

// RunStore — операции с runs, нужные планировщику.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByIdempotencyKey(ctx context.Context, flowName, key string) (*domain.Run, error)
}

// RequestedPublisher публикует событие о созданном run'е.
type RequestedPublisher interface {
	PublishRunRequested(ctx context.Context, runID uuid.UUID) error
}

// Scheduler — планировщик, создающий runs для flows с истекшим next_due_at.
type Scheduler struct {
	flows     FlowStore
	runs      RunStore
	publisher RequestedPublisher
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	FlowStore FlowStore
	RunStore  RunStore
	Publisher RequestedPublisher // опционально
	Logger    *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		flows:     cfg.FlowStore,
		runs:      cfg.RunStore,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due flows (is_active=true, next_due_at <= now)
// 2. Для каждого flow создаёт PENDING run
// 3. Обновляет next_due_at по cron-выражению
// 4. Публикует run.requested в RabbitMQ
//
// Ошибки одного flow не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	due, err := s.flows.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due flows: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("found due flows", "count", len(due))

	var processed, created int
	for i := range due {
		flow := &due[i]

		runCreated, err := s.processFlow(ctx, flow, now)
		if err != nil {
			s.logger.Error("failed to process due flow",
				"flow_id", flow.ID,
				"flow_name", flow.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if runCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(due),
		"processed", processed,
		"runs_created", created,
	)

	return nil
}

// processFlow обрабатывает один due flow.
// Возвращает true, если run был создан (не был дубликатом).
func (s *Scheduler) processFlow(ctx context.Context, flow *domain.Flow, now time.Time) (bool, error) {
	if flow.NextDueAt == nil || flow.CronExpr == "" {
		// ListDue такого не возвращает, но защищаемся от рассинхрона
		return false, nil
	}

	// Idempotency key "{flow_name}_{next_due_unix}" гарантирует,
	// что для одного слота расписания будет создан только один run,
	// даже если тик выполнят два экземпляра планировщика
	idempKey := fmt.Sprintf("%s_%d", flow.Name, flow.NextDueAt.Unix())

	existing, err := s.runs.GetByIdempotencyKey(ctx, flow.Name, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var runCreated bool
	var runID uuid.UUID

	if existing != nil {
		s.logger.Debug("run already exists (idempotency)",
			"flow_name", flow.Name,
			"run_id", existing.ID,
			"idempotency_key", idempKey,
		)
		runID = existing.ID
	} else {
		run := &domain.Run{
			ID:             uuid.New(),
			FlowName:       flow.Name,
			Status:         domain.RunStatusPending,
			IdempotencyKey: idempKey,
			CreatedAt:      now,
		}

		if err := s.runs.Create(ctx, run); err != nil {
			return false, fmt.Errorf("create run: %w", err)
		}

		s.logger.Info("created run from schedule",
			"run_id", run.ID,
			"flow_name", flow.Name,
			"cron_expr", flow.CronExpr,
		)

		runID = run.ID
		runCreated = true
	}

	nextDue, err := CalculateNextDue(flow.CronExpr, now)
	if err != nil {
		// Cron-выражение некорректно — next_due_at не трогаем,
		// flow перестанет попадать в ListDue после исправления документа
		s.logger.Error("failed to calculate next due",
			"flow_name", flow.Name,
			"cron_expr", flow.CronExpr,
			"error", err,
		)
		return runCreated, nil
	}

	if err := s.flows.UpdateNextDue(ctx, flow.ID, nextDue); err != nil {
		return runCreated, fmt.Errorf("update next due: %w", err)
	}

	if s.publisher != nil && runCreated {
		if err := s.publisher.PublishRunRequested(ctx, runID); err != nil {
			// Не фатально — run уже в БД, orchestrator заберёт его polling'ом
			s.logger.Warn("failed to publish run.requested",
				"run_id", runID,
				"error", err,
			)
		}
	}

	return runCreated, nil
}
