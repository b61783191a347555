package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownStep — нет executor'а для шага.
	ErrUnknownStep = errors.New("no executor for step")

	// ErrNoEndpoint — для шага не задан URL микросервиса.
	ErrNoEndpoint = errors.New("no endpoint for step")

	// ErrHTTPRequest — HTTP-запрос к микросервису завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
