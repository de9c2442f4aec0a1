package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Cascade/internal/domain"
)

// Метрики выполнения flow.
var (
	// RunsTotal — количество завершённых runs по терминальному статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_runs_total",
		Help: "Total finished runs by terminal status",
	}, []string{"status"})

	// RunDuration — длительность run'а.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_run_duration_seconds",
		Help:    "Run duration from start to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// RoundsPerRun — количество раундов на run.
	RoundsPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_rounds_per_run",
		Help:    "Scheduling rounds per run",
		Buckets: prometheus.LinearBuckets(1, 2, 15),
	})

	// StepsExecuted — количество выполненных шагов.
	StepsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_steps_executed_total",
		Help: "Total completed step executions",
	})

	// ActiveRuns — количество выполняющихся runs.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cascade_active_runs",
		Help: "Runs currently executing",
	})
)

// ObserveRun записывает метрики завершённого run'а.
func ObserveRun(result *domain.RunResult, elapsed time.Duration) {
	if result == nil {
		return
	}
	RunsTotal.WithLabelValues(string(result.Status)).Inc()
	RunDuration.Observe(elapsed.Seconds())
	RoundsPerRun.Observe(float64(result.Rounds))
	StepsExecuted.Add(float64(len(result.Trace)))
}
