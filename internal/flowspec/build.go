package flowspec

import (
	"fmt"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/flow"
	"github.com/shaiso/Cascade/internal/handlers"
)

// Build превращает валидный документ в финализированный flow.Registry.
//
// Порядок шагов документа становится порядком регистрации — от него
// зависит порядок дописывания трассы. Циклы и on_branch на не-router
// шаги отлавливает Finalize реестра.
func Build(doc *Document, registry *handlers.Registry) (*flow.Registry, error) {
	if err := Validate(doc, registry); err != nil {
		return nil, err
	}

	flowReg := flow.NewRegistry()

	for i := range doc.Steps {
		def := &doc.Steps[i]

		h, err := registry.Get(def.Type)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", def.ID, err)
		}

		step := domain.Step{
			ID:       def.ID,
			Trigger:  def.Trigger.toDomain(),
			Handler:  handlers.Bind(h, def.ID, def.Config, stepTimeout(doc, def)),
			IsRouter: def.Type == handlers.HandlerTypeBranch,
		}

		if err := flowReg.Register(step); err != nil {
			return nil, fmt.Errorf("step %s: %w", def.ID, err)
		}
	}

	if err := flowReg.Finalize(); err != nil {
		return nil, err
	}

	return flowReg, nil
}

// stepTimeout вычисляет таймаут шага с учётом Defaults документа.
func stepTimeout(doc *Document, def *StepDef) time.Duration {
	if def.TimeoutSec > 0 {
		return time.Duration(def.TimeoutSec) * time.Second
	}
	if doc.Defaults != nil && doc.Defaults.TimeoutSec > 0 {
		return time.Duration(doc.Defaults.TimeoutSec) * time.Second
	}
	return 0
}
