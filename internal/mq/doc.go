// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация уведомлений о шагах
//   - consumer.go   — потребление сообщений из очередей
//
// Routing keys (topic exchange conductor.pipeline):
//   - pipeline.<step>.start — шаг должен начаться, потребитель: воркер
//   - pipeline.<step>.done  — шаг завершён, потребитель: Orchestrator
//
// Orchestrator подписывается один раз на шаблон pipeline.*.done,
// воркеры — на pipeline.<step>.start своих шагов.
package mq
