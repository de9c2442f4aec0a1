package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cascade/internal/domain"
)

// RunRepo — репозиторий для работы с runs.
//
// Состояния, трасса и диагностика недостигнутых шагов хранятся
// в JSONB колонках.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	initialJSON, err := json.Marshal(run.InitialState)
	if err != nil {
		return fmt.Errorf("marshal initial state: %w", err)
	}

	query := `
		INSERT INTO runs (id, flow_name, status, initial_state, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.FlowName,
		run.Status,
		initialJSON,
		nullString(run.IdempotencyKey),
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := runSelect + ` WHERE id = $1`
	return r.scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, flowName, key string) (*domain.Run, error) {
	query := runSelect + ` WHERE flow_name = $1 AND idempotency_key = $2`
	return r.scanRun(r.pool.QueryRow(ctx, query, flowName, key))
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := runSelect + `
		WHERE ($1::text IS NULL OR flow_name = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.FlowName),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return r.collectRuns(rows)
}

// ListPending возвращает runs в статусе PENDING.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]domain.Run, error) {
	query := runSelect + `
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	defer rows.Close()
	return r.collectRuns(rows)
}

// ClaimPending атомарно переводит PENDING run в RUNNING.
//
// Возвращает ErrInvalidState, если run уже подхвачен другим
// экземпляром orchestrator'а.
func (r *RunRepo) ClaimPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE runs
		SET status = 'RUNNING', started_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Finish записывает терминальный итог run'а.
func (r *RunRepo) Finish(ctx context.Context, run *domain.Run) error {
	finalJSON, err := json.Marshal(run.FinalState)
	if err != nil {
		return fmt.Errorf("marshal final state: %w", err)
	}
	traceJSON, err := json.Marshal(run.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	unreachedJSON, err := json.Marshal(run.Unreached)
	if err != nil {
		return fmt.Errorf("marshal unreached: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, final_state = $3, trace = $4, unreached = $5,
		    error = $6, started_at = $7, finished_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		finalJSON,
		traceJSON,
		unreachedJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	FlowName string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

const runSelect = `
	SELECT id, flow_name, status, initial_state, final_state, trace, unreached,
	       error, idempotency_key, started_at, finished_at, created_at
	FROM runs
`

// scanRun сканирует одну строку в Run.
func (r *RunRepo) scanRun(row pgx.Row) (*domain.Run, error) {
	run, err := scanRunRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// collectRuns собирает все строки результата в слайс.
func (r *RunRepo) collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRunRow сканирует строку (pgx.Row или pgx.Rows) в Run.
func scanRunRow(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var initialJSON, finalJSON, traceJSON, unreachedJSON []byte
	var idempotencyKey, runError *string

	err := row.Scan(
		&run.ID,
		&run.FlowName,
		&run.Status,
		&initialJSON,
		&finalJSON,
		&traceJSON,
		&unreachedJSON,
		&runError,
		&idempotencyKey,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if initialJSON != nil {
		if err := json.Unmarshal(initialJSON, &run.InitialState); err != nil {
			return nil, fmt.Errorf("unmarshal initial state: %w", err)
		}
	}
	if finalJSON != nil {
		if err := json.Unmarshal(finalJSON, &run.FinalState); err != nil {
			return nil, fmt.Errorf("unmarshal final state: %w", err)
		}
	}
	if traceJSON != nil {
		if err := json.Unmarshal(traceJSON, &run.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
	}
	if unreachedJSON != nil {
		if err := json.Unmarshal(unreachedJSON, &run.Unreached); err != nil {
			return nil, fmt.Errorf("unmarshal unreached: %w", err)
		}
	}

	if idempotencyKey != nil {
		run.IdempotencyKey = *idempotencyKey
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}
