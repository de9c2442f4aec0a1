package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/flow"
	"github.com/shaiso/Cascade/internal/state"
)

// Phase — фаза жизненного цикла Runner'а.
type Phase string

const (
	// PhaseIdle — Runner создан, run не запущен.
	PhaseIdle Phase = "IDLE"

	// PhaseRunning — run выполняется.
	PhaseRunning Phase = "RUNNING"

	// PhaseDone — последний run завершён (любым терминальным статусом).
	PhaseDone Phase = "DONE"
)

// Runner доводит выполнение flow до терминального состояния.
//
// Модель выполнения — раунды:
//  1. Вычислить eligible шаги по трассе (flow.Eligible)
//  2. Выполнить все eligible handlers (конкурентно, каждый со своим
//     снимком состояния)
//  3. Барьер: дождаться возврата всех handlers раунда
//  4. Слить дельты раунда в Store одной операцией, дописать трассу
//  5. Повторять, пока есть eligible шаги
//
// Завершение раунда N полностью финализировано до вычисления
// eligibility раунда N+1 — раунды не перекрываются, шаг никогда
// не наблюдает дельту соседа по раунду.
//
// Терминальные исходы:
//   - COMPLETED — все непрунированные шаги завершены
//   - DEADLOCKED — eligible пусто, непрунированные шаги остались
//   - FAILED — handler вернул ошибку, конфликт state или отмена
//
// Retry внутри ядра нет: политика повторов — ответственность
// вызывающей стороны через повторный Run с нужным начальным состоянием.
type Runner struct {
	registry *flow.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	phase Phase
}

// Config — конфигурация Runner.
type Config struct {
	// Registry — финализированный реестр шагов.
	Registry *flow.Registry

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger
}

// New создаёт Runner для финализированного registry.
// Возвращает flow.ErrNotFinalized, если Finalize не был вызван.
func New(cfg Config) (*Runner, error) {
	if cfg.Registry == nil || !cfg.Registry.IsFinalized() {
		return nil, flow.ErrNotFinalized
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry: cfg.Registry,
		logger:   logger,
		phase:    PhaseIdle,
	}, nil
}

// Phase возвращает текущую фазу Runner'а.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// stepOutcome — результат выполнения одного handler'а в раунде.
type stepOutcome struct {
	stepID string
	delta  domain.Delta
	label  string
	err    error
}

// Run выполняет flow от начального состояния до терминального статуса.
//
// Возвращаемый RunResult всегда не-nil при nil error: DEADLOCKED и
// FAILED — легитимные итоги, а не ошибки вызова. Ошибка возвращается
// только если Run невозможно начать (уже выполняется).
//
// Отмена ctx кооперативна: handlers текущего раунда дорабатывают,
// новые раунды не планируются, статус — FAILED с причиной ErrCancelled.
func (r *Runner) Run(ctx context.Context, initial domain.State) (*domain.RunResult, error) {
	r.mu.Lock()
	if r.phase == PhaseRunning {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.phase = PhaseRunning
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.phase = PhaseDone
		r.mu.Unlock()
	}()

	steps := r.registry.Steps()
	record := domain.NewCompletionRecord()
	store := state.NewStore(initial)

	r.logger.Debug("run started", "steps", len(steps))

	round := 0
	for {
		// Отмена проверяется на границе раундов: in-flight handlers
		// уже завершились, новые не стартуют.
		if err := ctx.Err(); err != nil {
			return r.failed(record, store, round, "", ErrCancelled), nil
		}

		eligible := flow.Eligible(record, steps)
		if len(eligible) == 0 {
			return r.quiesced(record, store, round, steps), nil
		}

		round++
		outcomes := r.executeRound(ctx, round, eligible, store)

		// Отмена во время раунда: дельты не применяются.
		if err := ctx.Err(); err != nil {
			return r.failed(record, store, round, "", ErrCancelled), nil
		}

		// Ошибка handler'а фатальна для run'а: раунд не финализируется,
		// трасса предыдущих раундов сохраняется для postmortem.
		for i := range outcomes {
			if outcomes[i].err != nil {
				herr := &HandlerError{StepID: outcomes[i].stepID, Err: outcomes[i].err}
				r.logger.Warn("step failed",
					"step_id", outcomes[i].stepID,
					"round", round,
					"error", outcomes[i].err,
				)
				return r.failed(record, store, round, outcomes[i].stepID, herr), nil
			}
		}

		// Барьерное слияние дельт раунда.
		deltas := make([]state.RoundDelta, 0, len(outcomes))
		for i := range outcomes {
			if len(outcomes[i].delta) > 0 {
				deltas = append(deltas, state.RoundDelta{
					StepID: outcomes[i].stepID,
					Delta:  outcomes[i].delta,
				})
			}
		}
		if _, err := store.ApplyRound(deltas); err != nil {
			r.logger.Warn("state conflict", "round", round, "error", err)
			return r.failed(record, store, round, "", err), nil
		}

		// Завершения дописываются в порядке регистрации — трасса
		// воспроизводима при идентичных входах.
		now := time.Now()
		for i := range outcomes {
			record.Append(domain.CompletionEntry{
				StepID:      outcomes[i].stepID,
				Round:       round,
				BranchLabel: outcomes[i].label,
				CompletedAt: now,
			})
		}

		r.logger.Debug("round finalized",
			"round", round,
			"executed", len(outcomes),
			"completed", record.Len(),
		)
	}
}

// executeRound выполняет все eligible шаги раунда конкурентно.
//
// Каждый handler получает собственный снимок состояния; результаты
// собираются по индексу, поэтому порядок outcomes совпадает с порядком
// регистрации независимо от порядка завершения горутин.
func (r *Runner) executeRound(ctx context.Context, round int, eligible []domain.Step, store *state.Store) []stepOutcome {
	outcomes := make([]stepOutcome, len(eligible))

	var wg sync.WaitGroup
	for i := range eligible {
		step := eligible[i]

		r.logger.Debug("step dispatched",
			"step_id", step.ID,
			"round", round,
			"trigger", step.Trigger.String(),
		)

		wg.Add(1)
		go func(idx int, step domain.Step) {
			defer wg.Done()

			outcome := stepOutcome{stepID: step.ID}
			defer func() {
				if rec := recover(); rec != nil {
					outcome.err = &panicError{value: rec}
				}
				outcomes[idx] = outcome
			}()

			delta, label, err := step.Handler(ctx, store.Snapshot())
			outcome.delta = delta
			outcome.err = err
			if step.IsRouter {
				outcome.label = label
			}
		}(i, step)
	}
	wg.Wait()

	return outcomes
}

// quiesced формирует результат, когда eligible-множество опустело.
func (r *Runner) quiesced(record *domain.CompletionRecord, store *state.Store, rounds int, steps []domain.Step) *domain.RunResult {
	unreached := flow.Unreached(record, steps)

	status := domain.RunStatusCompleted
	if !flow.AllPruned(unreached) {
		status = domain.RunStatusDeadlocked
		r.logger.Warn("run deadlocked",
			"rounds", rounds,
			"completed", record.Len(),
			"unreached", len(unreached),
		)
	} else {
		r.logger.Info("run completed",
			"rounds", rounds,
			"completed", record.Len(),
			"pruned", len(unreached),
		)
	}

	return &domain.RunResult{
		Status:     status,
		FinalState: store.Final(),
		Trace:      record.Entries(),
		Rounds:     rounds,
		Unreached:  unreached,
	}
}

// failed формирует FAILED результат с частичной трассой.
func (r *Runner) failed(record *domain.CompletionRecord, store *state.Store, rounds int, stepID string, cause error) *domain.RunResult {
	return &domain.RunResult{
		Status:     domain.RunStatusFailed,
		FinalState: store.Final(),
		Trace:      record.Entries(),
		Rounds:     rounds,
		FailedStep: stepID,
		Err:        cause,
	}
}

// panicError — паника handler'а, преобразованная в ошибку.
// Паника шага не роняет процесс планировщика.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "handler panic: " + formatPanic(e.value)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}

// IsCancelled проверяет, что причина FAILED — отмена run'а.
func IsCancelled(result *domain.RunResult) bool {
	return result != nil && result.Status == domain.RunStatusFailed &&
		errors.Is(result.Err, ErrCancelled)
}
