package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

const (
	// HandlerTypeDelay — тип handler'а задержки.
	HandlerTypeDelay = "delay"

	// Ключи конфигурации delay.
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// DelayHandler — handler задержки.
//
// Приостанавливает выполнение шага на указанное время.
// Поддерживает graceful shutdown через context cancellation.
//
// Конфигурация:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type DelayHandler struct{}

// NewDelayHandler создаёт новый DelayHandler.
func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

// Type возвращает тип handler'а.
func (h *DelayHandler) Type() string {
	return HandlerTypeDelay
}

// Execute выполняет задержку.
func (h *DelayHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := h.parseDuration(req.Config)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrHandlerCancelled, ctx.Err())
	case <-timer.C:
		return &Response{
			Delta: domain.Delta{
				req.StepID + "_delayed_ms": duration.Milliseconds(),
			},
		}, nil
	}
}

// parseDuration извлекает длительность из конфигурации.
func (h *DelayHandler) parseDuration(config map[string]any) (time.Duration, error) {
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, HandlerTypeDelay)
}
