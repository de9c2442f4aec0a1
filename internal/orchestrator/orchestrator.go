package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/events"
	"github.com/shaiso/Cascade/internal/flowspec"
	"github.com/shaiso/Cascade/internal/handlers"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/runner"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval  = 10 * time.Second
	defaultBatchSize     = 100
	defaultMaxConcurrent = 16
)

// RunStore — операции с runs, нужные оркестратору.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
	ClaimPending(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, run *domain.Run) error
}

// FlowStore — операции с flows, нужные оркестратору.
type FlowStore interface {
	GetByName(ctx context.Context, name string) (*domain.Flow, error)
}

// FinishedPublisher публикует события о завершённых runs.
type FinishedPublisher interface {
	PublishRunFinished(ctx context.Context, payload events.RunFinishedPayload) error
}

// Orchestrator доводит PENDING runs до терминального статуса.
//
// Orchestrator:
//   - Получает новые runs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending runs в БД (polling fallback)
//   - Парсит документ flow и строит реестр шагов
//   - Выполняет run через runner (раунды, барьерное слияние состояния)
//   - Записывает итог в БД и публикует run.finished
type Orchestrator struct {
	runs     RunStore
	flows    FlowStore
	registry *handlers.Registry

	publisher FinishedPublisher
	conn      *events.Connection

	// Активные runs (runID → отметка), защита от двойного подхвата
	activeRuns map[uuid.UUID]struct{}
	mu         sync.RWMutex

	consumer *events.Consumer

	// Семафор конкурентных runs
	slots chan struct{}

	pollInterval time.Duration
	batchSize    int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	RunStore  RunStore
	FlowStore FlowStore

	// Handlers — реестр типов шагов (default: handlers.DefaultRegistry()).
	Handlers *handlers.Registry

	// Publisher — публикация run.finished. Nil допустим: события
	// просто не публикуются.
	Publisher FinishedPublisher

	// Conn — соединение с RabbitMQ для consumer'а runs.requested.
	// Nil допустим: остаётся только polling.
	Conn *events.Connection

	// PollInterval — интервал polling fallback (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество runs за один poll (default: 100).
	BatchSize int

	// MaxConcurrent — максимум одновременно выполняемых runs (default: 16).
	MaxConcurrent int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	registry := cfg.Handlers
	if registry == nil {
		registry = handlers.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		runs:         cfg.RunStore,
		flows:        cfg.FlowStore,
		registry:     registry,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		activeRuns:   make(map[uuid.UUID]struct{}),
		slots:        make(chan struct{}, maxConcurrent),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает consumer для runs.requested (если задан Conn) и
// polling горутину для fallback.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
		"max_concurrent", cap(o.slots),
	)

	if o.conn != nil {
		o.consumer = events.NewConsumer(o.conn, o.logger, events.ConsumerConfig{
			Queue:    string(events.QueueRunsRequested),
			Handler:  o.handleRunRequested,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("run consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и дожидается активных runs.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// handleRunRequested обрабатывает событие о новом run.
func (o *Orchestrator) handleRunRequested(ctx context.Context, delivery *events.Delivery) error {
	payload, err := events.ParsePayload[events.RunRequestedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse run.requested payload", "error", err)
		return err
	}

	o.logger.Debug("received run.requested event", "run_id", payload.RunID)

	if err := o.ProcessRun(ctx, payload.RunID); err != nil {
		// Гонка с polling или другим экземпляром — не ошибка доставки
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
			o.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		o.logger.Error("failed to process run", "run_id", payload.RunID, "error", err)
		return err
	}

	return nil
}

// pollLoop — цикл polling для fallback.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте: подхватываем runs, созданные
	// пока оркестратор был выключен
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (o *Orchestrator) poll(ctx context.Context) {
	pending, err := o.runs.ListPending(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list pending runs", "error", err)
		return
	}

	if len(pending) == 0 {
		return
	}

	o.logger.Debug("poll found pending runs", "count", len(pending))

	for i := range pending {
		if err := o.ProcessRun(ctx, pending[i].ID); err != nil {
			if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
				continue
			}
			o.logger.Error("failed to process run from poll",
				"run_id", pending[i].ID,
				"error", err,
			)
		}
	}
}

// ProcessRun подхватывает PENDING run и выполняет его.
//
// Выполнение синхронное: вызов возвращается после терминального
// статуса. Конкурентность ограничена семафором slots.
func (o *Orchestrator) ProcessRun(ctx context.Context, runID uuid.UUID) error {
	if !o.markActive(runID) {
		return ErrRunAlreadyActive
	}
	defer o.unmarkActive(runID)

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// Атомарный claim: проигравший гонку экземпляр получает ErrInvalidState
	if err := o.runs.ClaimPending(ctx, runID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}
	run.MarkRunning()

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		run.MarkFailed("orchestrator shutting down")
		o.finishRun(ctx, run)
		return ctx.Err()
	}
	defer func() { <-o.slots }()

	telemetry.ActiveRuns.Inc()
	defer telemetry.ActiveRuns.Dec()

	o.executeRun(ctx, run)
	return nil
}

// executeRun выполняет run от парсинга документа до записи итога.
func (o *Orchestrator) executeRun(ctx context.Context, run *domain.Run) {
	logger := telemetry.WithRunID(o.logger, run.ID.String())

	flow, err := o.flows.GetByName(ctx, run.FlowName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			run.MarkFailed(fmt.Sprintf("flow not found: %s", run.FlowName))
			o.finishRun(ctx, run)
			return
		}
		logger.Error("failed to load flow", "flow_name", run.FlowName, "error", err)
		run.MarkFailed(fmt.Sprintf("load flow: %v", err))
		o.finishRun(ctx, run)
		return
	}

	doc, err := flowspec.Parse([]byte(flow.Document))
	if err != nil {
		run.MarkFailed(fmt.Sprintf("parse flow document: %v", err))
		o.finishRun(ctx, run)
		return
	}

	flowReg, err := flowspec.Build(doc, o.registry)
	if err != nil {
		run.MarkFailed(fmt.Sprintf("build flow: %v", err))
		o.finishRun(ctx, run)
		return
	}

	r, err := runner.New(runner.Config{
		Registry: flowReg,
		Logger:   telemetry.WithFlowName(logger, run.FlowName),
	})
	if err != nil {
		run.MarkFailed(fmt.Sprintf("create runner: %v", err))
		o.finishRun(ctx, run)
		return
	}

	logger.Info("run started", "flow_name", run.FlowName, "steps", flowReg.Len())

	started := time.Now()
	result, err := r.Run(ctx, run.InitialState)
	if err != nil {
		// Runner отказал до старта (занят) — в нормальном потоке недостижимо
		run.MarkFailed(fmt.Sprintf("run flow: %v", err))
		o.finishRun(ctx, run)
		return
	}

	run.ApplyResult(result)
	telemetry.ObserveRun(result, time.Since(started))

	logger.Info("run finished",
		"flow_name", run.FlowName,
		"status", run.Status,
		"rounds", result.Rounds,
		"completed_steps", len(result.Trace),
	)

	o.finishRun(ctx, run)
}

// finishRun записывает итог в БД и публикует run.finished.
func (o *Orchestrator) finishRun(ctx context.Context, run *domain.Run) {
	if err := o.runs.Finish(ctx, run); err != nil {
		o.logger.Error("failed to persist run result",
			"run_id", run.ID,
			"status", run.Status,
			"error", err,
		)
		return
	}

	if o.publisher == nil {
		return
	}

	payload := events.RunFinishedPayload{
		RunID:    run.ID,
		FlowName: run.FlowName,
		Status:   run.Status,
		Rounds:   lastRound(run.Trace),
		Error:    run.Error,
	}
	if err := o.publisher.PublishRunFinished(ctx, payload); err != nil {
		o.logger.Warn("failed to publish run.finished", "run_id", run.ID, "error", err)
	}
}

// markActive добавляет run в активные.
// Возвращает false, если run уже обрабатывается.
func (o *Orchestrator) markActive(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[runID]; exists {
		return false
	}
	o.activeRuns[runID] = struct{}{}
	return true
}

// unmarkActive удаляет run из активных.
func (o *Orchestrator) unmarkActive(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// lastRound возвращает номер последнего раунда трассы.
func lastRound(trace []domain.CompletionEntry) int {
	if len(trace) == 0 {
		return 0
	}
	return trace[len(trace)-1].Round
}
