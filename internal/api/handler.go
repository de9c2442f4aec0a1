package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/handlers"
	"github.com/shaiso/Cascade/internal/repo"
)

// FlowStore — операции с flows, нужные API.
type FlowStore interface {
	Create(ctx context.Context, flow *domain.Flow) error
	GetByName(ctx context.Context, name string) (*domain.Flow, error)
	List(ctx context.Context) ([]domain.Flow, error)
	Update(ctx context.Context, flow *domain.Flow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — операции с runs, нужные API.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetByIdempotencyKey(ctx context.Context, flowName, key string) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// RequestedPublisher публикует событие о созданном run'е.
type RequestedPublisher interface {
	PublishRunRequested(ctx context.Context, runID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flows     FlowStore
	runs      RunStore
	registry  *handlers.Registry
	publisher RequestedPublisher
	logger    *slog.Logger
	started   time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	FlowStore FlowStore
	RunStore  RunStore
	Registry  *handlers.Registry // реестр типов шагов для валидации документов
	Publisher RequestedPublisher // опционально
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = handlers.DefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		flows:     cfg.FlowStore,
		runs:      cfg.RunStore,
		registry:  registry,
		publisher: cfg.Publisher,
		logger:    logger,
		started:   time.Now(),
	}
}
