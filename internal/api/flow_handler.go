package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/flowspec"
	"github.com/shaiso/Cascade/internal/scheduler"
)

// ListFlows возвращает список всех flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.flows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowResponse, len(flows))
	for i, f := range flows {
		result[i] = FlowFromDomain(f)
	}

	List(w, result, len(result))
}

// CreateFlow создаёт новый flow.
// POST /api/v1/flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.Document == "" {
		BadRequest(w, "document is required")
		return
	}

	if err := h.validateDocument(req.Document); err != nil {
		BadRequest(w, err.Error())
		return
	}

	flow := &domain.Flow{
		ID:       uuid.New(),
		Name:     req.Name,
		Document: req.Document,
		CronExpr: req.CronExpr,
		IsActive: req.IsActive,
	}

	if req.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(req.CronExpr); err != nil {
			BadRequest(w, err.Error())
			return
		}
		nextDue, err := scheduler.CalculateInitialNextDue(req.CronExpr)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		flow.NextDueAt = &nextDue
	}

	if err := h.flows.Create(r.Context(), flow); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, FlowFromDomain(*flow))
}

// GetFlow возвращает flow по имени.
// GET /api/v1/flows/{name}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.GetByName(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	Success(w, FlowFromDomain(*flow))
}

// UpdateFlow обновляет flow.
// PUT /api/v1/flows/{name}
func (h *Handler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var req UpdateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	flow, err := h.flows.GetByName(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	if req.Document != nil {
		if err := h.validateDocument(*req.Document); err != nil {
			BadRequest(w, err.Error())
			return
		}
		flow.Document = *req.Document
	}

	if req.CronExpr != nil {
		flow.CronExpr = *req.CronExpr
		if *req.CronExpr == "" {
			flow.NextDueAt = nil
		} else {
			if err := scheduler.ValidateCronExpr(*req.CronExpr); err != nil {
				BadRequest(w, err.Error())
				return
			}
			nextDue, err := scheduler.CalculateInitialNextDue(*req.CronExpr)
			if err != nil {
				BadRequest(w, err.Error())
				return
			}
			flow.NextDueAt = &nextDue
		}
	}

	if req.IsActive != nil {
		flow.IsActive = *req.IsActive
	}

	if err := h.flows.Update(r.Context(), flow); err != nil {
		HandleRepoError(w, h.logger, err, "flow not found")
		return
	}

	Success(w, FlowFromDomain(*flow))
}

// DeleteFlow удаляет flow.
// DELETE /api/v1/flows/{name}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.GetByName(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	if err := h.flows.Delete(r.Context(), flow.ID); err != nil {
		HandleRepoError(w, h.logger, err, "flow not found")
		return
	}

	NoContent(w)
}

// GetFlowGraph возвращает граф шагов flow.
// GET /api/v1/flows/{name}/graph
func (h *Handler) GetFlowGraph(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.GetByName(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	doc, err := flowspec.Parse([]byte(flow.Document))
	if err != nil {
		// Документ в БД прошёл валидацию при записи, так что это
		// признак ручного вмешательства
		InvalidState(w, "stored document is not parseable: "+err.Error())
		return
	}

	registry, err := flowspec.Build(doc, h.registry)
	if err != nil {
		InvalidState(w, "stored document is invalid: "+err.Error())
		return
	}

	Success(w, registry.Graph())
}

// validateDocument проверяет, что документ парсится и собирается
// в финализированный реестр шагов.
func (h *Handler) validateDocument(document string) error {
	doc, err := flowspec.Parse([]byte(document))
	if err != nil {
		return err
	}
	_, err = flowspec.Build(doc, h.registry)
	return err
}

// Healthz — проверка живости сервиса.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}
