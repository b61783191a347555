package domain

import "time"

// EventType — тип записи в журнале переходов pipeline.
type EventType string

const (
	EventPipelineCreated   EventType = "pipeline_created"
	EventStepStarted       EventType = "step_started"
	EventStepSucceeded     EventType = "step_succeeded"
	EventStepFailed        EventType = "step_failed"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineFailed    EventType = "pipeline_failed"
)

// EventSource — откуда пришло уведомление о завершении шага.
type EventSource string

const (
	SourceAPI EventSource = "api"
	SourceBus EventSource = "bus"
)

// PipelineEvent — запись журнала о переходе состояния.
//
// Журнал вспомогательный: авторитетное состояние — запись Pipeline
// в key-value хранилище.
type PipelineEvent struct {
	ID         int64     `json:"id"`
	PipelineID string    `json:"pipelineId"`
	Type       EventType `json:"type"`
	Step       string    `json:"step,omitempty"`
	StepIndex  int       `json:"stepIndex"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StepCompletedEvent — уведомление о завершении шага.
//
// Приходит из шины (pipeline.<step>.done) или через HTTP callback воркера.
type StepCompletedEvent struct {
	PipelineID string           `json:"pipelineId"`
	Step       string           `json:"step"`
	Status     CompletionStatus `json:"status"`
}
