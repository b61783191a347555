// Package orchestrator управляет выполнением pipelines.
//
// Orchestrator отвечает за:
//   - Создание pipeline и публикацию старта первого шага
//   - Приём уведомлений о завершении шагов (шина и HTTP callback)
//   - Сдвиг указателя текущего шага и публикацию следующего
//   - Финализацию pipeline (COMPLETED/FAILED)
//
// Каждый вызов читает запись pipeline из хранилища заново, кэша между
// вызовами нет. Последовательность load → mutate → save → publish
// выполняется под мьютексом, привязанным к pipeline ID, поэтому
// уведомления из шины и из API для одного pipeline не теряют обновления.
package orchestrator
