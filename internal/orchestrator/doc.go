// Package orchestrator доводит PENDING runs до терминального статуса.
//
// Orchestrator отвечает за:
//   - Получение новых runs из очереди RabbitMQ (+ polling fallback)
//   - Атомарный claim run'а (гонки между экземплярами решает БД)
//   - Парсинг документа flow и построение реестра шагов
//   - Выполнение run через runner
//   - Запись итога в БД и публикацию run.finished
//
// Сами раунды, триггеры и слияние состояния живут в пакетах flow,
// state и runner — orchestrator только связывает их с внешним миром.
package orchestrator
