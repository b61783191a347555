// Package cli реализует инструмент командной строки Conductor.
//
// CLI работает через HTTP API и не импортирует внутренние пакеты сервера.
//
// Client инкапсулирует запросы к API и разбор ответов об ошибках
// ({"error": {"code", "message"}}). Output печатает таблицы
// (text/tabwriter) или JSON с флагом --json; данные идут в stdout,
// сообщения в stderr, поэтому вывод можно передавать в jq.
//
// Команды:
//   - pipeline start --name NAME --steps a,b,c
//   - pipeline status ID
//   - pipeline update ID --step NAME --status SUCCESS|FAILED
//   - pipeline history ID
//   - pipeline steps
//
// NewPipelineCmd принимает clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
