package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrInvalidCompletionStatus — статус завершения не SUCCESS и не FAILED.
	ErrInvalidCompletionStatus = errors.New("invalid completion status")

	// ErrNoSteps — pipeline без шагов.
	ErrNoSteps = errors.New("pipeline has no steps")

	// ErrNotRunning — операция допустима только для RUNNING pipeline.
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrInvariant — запись pipeline нарушает инварианты.
	ErrInvariant = errors.New("pipeline invariant violated")
)
