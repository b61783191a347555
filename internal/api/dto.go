package api

import "encoding/json"

// Pipeline DTOs

// ExecuteRequest — запрос на запуск pipeline.
//
// Steps декодируется лениво, чтобы отличать отсутствующий или
// не-массивный steps от пустого списка.
type ExecuteRequest struct {
	Name  string          `json:"name"`
	Steps json.RawMessage `json:"steps"`
}

// ExecuteResponse — ответ на запуск pipeline.
type ExecuteResponse struct {
	PipelineID string `json:"pipelineId"`
}

// StepUpdateRequest — уведомление воркера о завершении шага.
type StepUpdateRequest struct {
	PipelineID string `json:"pipelineId"`
	StepName   string `json:"stepName"`
	Status     string `json:"status"`
}

// MessageResponse — ответ с текстовым сообщением.
type MessageResponse struct {
	Message string `json:"message"`
}
