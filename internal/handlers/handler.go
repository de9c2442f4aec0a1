package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Ошибки handlers.
var (
	// ErrHandlerNotFound — тип handler'а не найден в реестре.
	ErrHandlerNotFound = errors.New("handler type not found")

	// ErrInvalidConfig — невалидная конфигурация handler'а.
	ErrInvalidConfig = errors.New("invalid handler config")

	// ErrHandlerCancelled — выполнение handler'а отменено.
	ErrHandlerCancelled = errors.New("handler execution cancelled")
)

// Handler — интерфейс для типов шагов, описанных декларативно.
//
// Каждый тип (http, delay, transform, branch) реализует этот интерфейс.
// Привязка к конкретному шагу flow происходит через Bind.
type Handler interface {
	// Type возвращает тип handler'а.
	Type() string

	// Execute выполняет handler и возвращает результат.
	// Handler должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения handler'а.
type Request struct {
	// StepID — идентификатор шага во flow.
	StepID string

	// Config — конфигурация шага, уже отрендеренная через RenderConfig.
	Config map[string]any

	// Snapshot — снимок разделяемого состояния на момент раунда.
	Snapshot domain.State

	// Timeout — таймаут выполнения шага.
	// Если 0, используется таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения handler'а.
type Response struct {
	// Delta — записи в разделяемое состояние.
	// Сливаются барьером после завершения раунда.
	Delta domain.Delta

	// Label — метка ветвления. Учитывается только для router шагов.
	Label string
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{Delta: make(domain.Delta)}
}

// Bind превращает декларативный handler в domain.Handler шага.
//
// Конфигурация рендерится заново на каждом вызове: шаблоны видят
// состояние именно того раунда, в котором шаг стал eligible.
func Bind(h Handler, stepID string, config map[string]any, timeout time.Duration) domain.Handler {
	return func(ctx context.Context, snapshot domain.State) (domain.Delta, string, error) {
		tmplCtx := NewContext(snapshot)

		rendered, err := RenderConfig(config, tmplCtx)
		if err != nil {
			return nil, "", err
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp, err := h.Execute(ctx, &Request{
			StepID:   stepID,
			Config:   rendered,
			Snapshot: snapshot,
			Timeout:  timeout,
		})
		if err != nil {
			return nil, "", err
		}

		return resp.Delta, resp.Label, nil
	}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
