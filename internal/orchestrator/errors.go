package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidPipeline — некорректное имя или список шагов.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrPublish — запись сохранена, но уведомление о старте шага не опубликовано.
	ErrPublish = errors.New("publish step start")

	// ErrListenerUnavailable — нет соединения с шиной для подписки.
	ErrListenerUnavailable = errors.New("completion listener unavailable")
)
