package worker

import (
	"context"
	"time"
)

const defaultDelay = time.Second

// DelayExecutor — executor-заглушка для разработки.
//
// Ждёт Duration и завершает шаг успешно. Поддерживает отмену через context.
type DelayExecutor struct {
	Duration time.Duration
}

// Execute выполняет задержку.
func (e *DelayExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	duration := e.Duration
	if duration <= 0 {
		duration = defaultDelay
	}

	select {
	case <-time.After(duration):
		return &ExecutionResult{
			Outputs: map[string]any{"delayed": duration.String()},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
