// Cascade Orchestrator — доводит PENDING runs до терминального статуса.
//
// Orchestrator:
//   - Получает новые runs из RabbitMQ (+ polling fallback)
//   - Парсит документ flow и строит реестр шагов
//   - Выполняет runs через runner
//   - Записывает итог в БД и публикует run.finished
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cascade/internal/events"
	"github.com/shaiso/Cascade/internal/orchestrator"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cascade-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	runRepo := repo.NewRunRepo(pool)
	flowRepo := repo.NewFlowRepo(pool)

	// RabbitMQ
	var conn *events.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = events.DefaultURL()
	}

	conn, err = events.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		conn = nil
	} else {
		defer conn.Close()
		logger.Info("RabbitMQ connected")

		if err := events.SetupTopology(conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	orchCfg := orchestrator.Config{
		RunStore:  runRepo,
		FlowStore: flowRepo,
		Conn:      conn,
		Logger:    logger,
	}
	if conn != nil {
		orchCfg.Publisher = events.NewPublisher(conn, logger)
	}
	orch := orchestrator.New(orchCfg)

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	orch.Stop()
	logger.Info("cascade-orchestrator stopped")
}
