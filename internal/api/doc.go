// Package api содержит HTTP API сервера Conductor.
//
// Структура:
//   - handler.go          — Handler с DI (оркестратор, хранилище, журнал, каталог)
//   - routes.go           — регистрация маршрутов на chi.Router
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipeline
//
// API запускает pipelines, отдаёт их состояние и принимает
// уведомления о завершении шагов от воркеров по HTTP.
package api
