package domain

import (
	"encoding/json"
	"fmt"
)

// PipelineStatus — статус pipeline.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
type PipelineStatus string

const (
	// PipelineStatusRunning — pipeline выполняется, есть активный шаг.
	PipelineStatusRunning PipelineStatus = "RUNNING"

	// PipelineStatusFailed — один из шагов упал, pipeline остановлен.
	PipelineStatusFailed PipelineStatus = "FAILED"

	// PipelineStatusCompleted — все шаги успешно завершены.
	PipelineStatusCompleted PipelineStatus = "COMPLETED"
)

// IsTerminal возвращает true, если статус финальный.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusFailed, PipelineStatusCompleted:
		return true
	default:
		return false
	}
}

// StepStatus — статус шага внутри pipeline.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED
type StepStatus string

const (
	// StepStatusPending — шаг ещё не запускался.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг опубликован и ожидает завершения воркером.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSuccess — воркер сообщил об успехе.
	StepStatusSuccess StepStatus = "SUCCESS"

	// StepStatusFailed — воркер сообщил об ошибке.
	StepStatusFailed StepStatus = "FAILED"
)

// CompletionStatus — результат шага, который сообщает воркер.
//
// Закрытое перечисление: при декодировании из JSON допускаются
// только SUCCESS и FAILED.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "SUCCESS"
	CompletionFailed  CompletionStatus = "FAILED"
)

// ParseCompletionStatus парсит строку в CompletionStatus.
func ParseCompletionStatus(s string) (CompletionStatus, error) {
	switch CompletionStatus(s) {
	case CompletionSuccess, CompletionFailed:
		return CompletionStatus(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCompletionStatus, s)
	}
}

// Valid проверяет, что значение входит в перечисление.
func (s CompletionStatus) Valid() bool {
	return s == CompletionSuccess || s == CompletionFailed
}

// UnmarshalJSON отклоняет значения вне перечисления.
func (s *CompletionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCompletionStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
