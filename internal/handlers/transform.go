package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Cascade/internal/domain"
)

const (
	// HandlerTypeTransform — тип handler'а трансформации.
	HandlerTypeTransform = "transform"

	// Ключ конфигурации.
	configMappings = "mappings"
)

// TransformHandler — handler трансформации данных.
//
// Применяет Go templates к снимку состояния и пишет результаты
// обратно как дельту.
//
// Конфигурация:
//
//	{
//	    "mappings": {
//	        "total": "{{ len .State.items }}",
//	        "first_id": "{{ index .State.items 0 }}"
//	    }
//	}
//
// Delta — результаты рендеринга каждого mapping:
//
//	{"total": 10, "first_id": "abc123"}
type TransformHandler struct{}

// NewTransformHandler создаёт новый TransformHandler.
func NewTransformHandler() *TransformHandler {
	return &TransformHandler{}
}

// Type возвращает тип handler'а.
func (h *TransformHandler) Type() string {
	return HandlerTypeTransform
}

// Execute выполняет трансформацию данных.
func (h *TransformHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrHandlerCancelled, ctx.Err())
	default:
	}

	mappings := h.parseMappings(req.Config)
	if len(mappings) == 0 {
		return EmptyResponse(), nil
	}

	tmplCtx := NewContext(req.Snapshot)

	delta := make(domain.Delta, len(mappings))
	for key, tmpl := range mappings {
		rendered, err := Render(tmpl, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}

		delta[key] = h.parseValue(rendered)
	}

	return &Response{Delta: delta}, nil
}

// parseMappings извлекает mappings из конфигурации.
func (h *TransformHandler) parseMappings(config map[string]any) map[string]string {
	raw := config[configMappings]
	if raw == nil {
		return nil
	}

	switch m := raw.(type) {
	case map[string]string:
		return m

	case map[string]any:
		result := make(map[string]string, len(m))
		for key, val := range m {
			if str, ok := val.(string); ok {
				result[key] = str
			}
		}
		return result

	default:
		return nil
	}
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func (h *TransformHandler) parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	return value
}
