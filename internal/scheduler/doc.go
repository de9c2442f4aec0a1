// Package scheduler реализует запуск flows по расписанию.
//
// Scheduler периодически проверяет flows с истекшим next_due_at
// и создаёт для них новые PENDING runs.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processFlow)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    FlowStore: flowRepo,
//	    RunStore:  runRepo,
//	    Publisher: publisher, // опционально
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в секунду)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler
