package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cascade/internal/domain"
)

// FlowRepo — репозиторий для работы с flows.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

// Create создаёт новый flow.
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	query := `
		INSERT INTO flows (id, name, document, cron_expr, next_due_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		flow.ID,
		flow.Name,
		flow.Document,
		nullString(flow.CronExpr),
		flow.NextDueAt,
		flow.IsActive,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("flow %s: %w", flow.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// GetByID возвращает flow по ID.
func (r *FlowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	query := `
		SELECT id, name, document, cron_expr, next_due_at, is_active, created_at, updated_at
		FROM flows
		WHERE id = $1
	`
	return r.scanFlow(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает flow по имени.
func (r *FlowRepo) GetByName(ctx context.Context, name string) (*domain.Flow, error) {
	query := `
		SELECT id, name, document, cron_expr, next_due_at, is_active, created_at, updated_at
		FROM flows
		WHERE name = $1
	`
	return r.scanFlow(r.pool.QueryRow(ctx, query, name))
}

// List возвращает список всех flows.
func (r *FlowRepo) List(ctx context.Context) ([]domain.Flow, error) {
	query := `
		SELECT id, name, document, cron_expr, next_due_at, is_active, created_at, updated_at
		FROM flows
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		flow, err := r.scanFlowFromRows(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// ListDue возвращает активные flows, у которых подошло время запуска.
func (r *FlowRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Flow, error) {
	query := `
		SELECT id, name, document, cron_expr, next_due_at, is_active, created_at, updated_at
		FROM flows
		WHERE is_active = true
		  AND cron_expr IS NOT NULL
		  AND next_due_at IS NOT NULL
		  AND next_due_at <= $1
		ORDER BY next_due_at ASC
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		flow, err := r.scanFlowFromRows(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// Update обновляет flow.
func (r *FlowRepo) Update(ctx context.Context, flow *domain.Flow) error {
	query := `
		UPDATE flows
		SET document = $2, cron_expr = $3, next_due_at = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		flow.ID,
		flow.Document,
		nullString(flow.CronExpr),
		flow.NextDueAt,
		flow.IsActive,
		flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateNextDue записывает время следующего запуска по расписанию.
func (r *FlowRepo) UpdateNextDue(ctx context.Context, id uuid.UUID, nextDue time.Time) error {
	query := `
		UPDATE flows
		SET next_due_at = $2, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, nextDue)
	if err != nil {
		return fmt.Errorf("update next due: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет flow.
func (r *FlowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// scanFlow сканирует одну строку в Flow.
func (r *FlowRepo) scanFlow(row pgx.Row) (*domain.Flow, error) {
	var flow domain.Flow
	var cronExpr *string

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Document,
		&cronExpr,
		&flow.NextDueAt,
		&flow.IsActive,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	if cronExpr != nil {
		flow.CronExpr = *cronExpr
	}
	return &flow, nil
}

// scanFlowFromRows сканирует строку из rows в Flow.
func (r *FlowRepo) scanFlowFromRows(rows pgx.Rows) (*domain.Flow, error) {
	var flow domain.Flow
	var cronExpr *string

	err := rows.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Document,
		&cronExpr,
		&flow.NextDueAt,
		&flow.IsActive,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	if cronExpr != nil {
		flow.CronExpr = *cronExpr
	}
	return &flow, nil
}

// isUniqueViolation проверяет ошибку нарушения уникальности (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
