package handlers

import (
	"context"
	"fmt"
)

const (
	// HandlerTypeBranch — тип handler'а ветвления.
	HandlerTypeBranch = "branch"

	// Ключи конфигурации branch.
	configRules   = "rules"
	configWhen    = "when"
	configLabel   = "label"
	configDefault = "default"
)

// BranchHandler — handler ветвления для router шагов.
//
// Вычисляет условия по порядку и возвращает метку первого
// сработавшего правила. Шаги, привязанные к другим меткам,
// отсекаются планировщиком.
//
// Конфигурация:
//
//	{
//	    "rules": [
//	        {"when": "gt .State.amount 1000", "label": "manual_review"},
//	        {"when": ".State.is_vip", "label": "fast_track"}
//	    ],
//	    "default": "standard"
//	}
//
// Delta пустая: branch только маршрутизирует, состояние не меняет.
// Если ни одно правило не сработало и default не задан, возвращается
// пустая метка — все ветки router'а будут отсечены.
type BranchHandler struct{}

// NewBranchHandler создаёт новый BranchHandler.
func NewBranchHandler() *BranchHandler {
	return &BranchHandler{}
}

// Type возвращает тип handler'а.
func (h *BranchHandler) Type() string {
	return HandlerTypeBranch
}

// Execute вычисляет правила и возвращает метку ветвления.
func (h *BranchHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrHandlerCancelled, ctx.Err())
	default:
	}

	rules, err := h.parseRules(req.Config)
	if err != nil {
		return nil, err
	}

	tmplCtx := NewContext(req.Snapshot)

	// Правила вычисляются в порядке объявления: побеждает первое
	for _, rule := range rules {
		matched, err := RenderCondition(rule.when, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("branch rule %q: %w", rule.label, err)
		}
		if matched {
			return &Response{Label: rule.label}, nil
		}
	}

	return &Response{Label: GetConfigString(req.Config, configDefault)}, nil
}

// branchRule — одно правило ветвления.
type branchRule struct {
	when  string
	label string
}

// parseRules извлекает правила из конфигурации.
func (h *BranchHandler) parseRules(config map[string]any) ([]branchRule, error) {
	raw, ok := config[configRules]
	if !ok {
		// Без правил допустим только статический default
		if GetConfigString(config, configDefault) == "" {
			return nil, fmt.Errorf("%w: %s: rules or default required",
				ErrInvalidConfig, HandlerTypeBranch)
		}
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: rules must be a list",
			ErrInvalidConfig, HandlerTypeBranch)
	}

	rules := make([]branchRule, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: rule %d must be an object",
				ErrInvalidConfig, HandlerTypeBranch, i)
		}

		rule := branchRule{
			when:  GetConfigString(m, configWhen),
			label: GetConfigString(m, configLabel),
		}
		if rule.when == "" || rule.label == "" {
			return nil, fmt.Errorf("%w: %s: rule %d: when and label required",
				ErrInvalidConfig, HandlerTypeBranch, i)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
