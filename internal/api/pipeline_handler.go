package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/orchestrator"
)

// Execute запускает новый pipeline.
// POST /pipeline/execute
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	var steps []string
	if len(req.Steps) == 0 || json.Unmarshal(req.Steps, &steps) != nil || steps == nil {
		BadRequest(w, "steps must be an array of step names")
		return
	}

	id, err := h.pipelines.StartPipeline(r.Context(), req.Name, steps)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, ExecuteResponse{PipelineID: id})
}

// Status возвращает запись pipeline как есть.
// GET /pipeline/status/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.store.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, p)
}

// StepUpdate принимает уведомление воркера о завершении шага.
// POST /pipeline/step/update
func (h *Handler) StepUpdate(w http.ResponseWriter, r *http.Request) {
	var req StepUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.PipelineID == "" || req.StepName == "" || req.Status == "" {
		BadRequest(w, "missing required fields")
		return
	}

	status, err := domain.ParseCompletionStatus(req.Status)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	err = h.pipelines.OnStepCompleted(r.Context(), domain.StepCompletedEvent{
		PipelineID: req.PipelineID,
		Step:       req.StepName,
		Status:     status,
	}, domain.SourceAPI)
	if errors.Is(err, orchestrator.ErrPublish) {
		// Запись уже продвинута: повтор callback применился бы к следующему шагу
		h.logger.Warn("step updated, next step start not published",
			"pipeline_id", req.PipelineID,
			"step", req.StepName,
			"error", err,
		)
		Success(w, MessageResponse{Message: "step updated, next step start not published"})
		return
	}
	if err != nil {
		h.logger.Error("failed to update step",
			"pipeline_id", req.PipelineID,
			"step", req.StepName,
			"error", err,
		)
		Error(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to update step")
		return
	}

	Success(w, MessageResponse{Message: "step updated successfully"})
}

// History возвращает журнал переходов pipeline.
// GET /pipeline/history/{id}
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		NotFound(w, "history is disabled")
		return
	}

	events, err := h.history.ListByPipeline(r.Context(), chi.URLParam(r, "id"))
	if HandleError(w, h.logger, err, "") {
		return
	}
	if events == nil {
		events = []domain.PipelineEvent{}
	}

	List(w, events, len(events))
}

// Steps возвращает каталог шагов.
// GET /pipeline/steps
func (h *Handler) Steps(w http.ResponseWriter, r *http.Request) {
	Success(w, h.catalog)
}
