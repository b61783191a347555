// Package worker — мост между шиной pipeline и REST-микросервисами шагов.
//
// Worker потребляет pipeline.<step>.start для настроенных шагов,
// выполняет шаг через Executor и публикует pipeline.<step>.done
// со статусом SUCCESS или FAILED. Оркестратор получает результат
// обычной подпиской на pipeline.*.done.
//
// Executor'ы:
//   - HTTPExecutor — POST {"pipelineId", "step"} на URL микросервиса с повторами (retry-go)
//   - DelayExecutor — заглушка для разработки, ждёт заданное время
//
// Registry сопоставляет имя шага executor'у; executor по умолчанию
// обслуживает все шаги без собственной записи.
//
// Ошибки делятся на два уровня:
//   - Логический отказ шага (ExecutionResult.Error) — публикуется FAILED
//   - Прерывание (error от Execute, например отмена ctx) — ничего не публикуется,
//     сообщение возвращается в очередь
package worker
