// Package events предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.requested — новый run ожидает выполнения
//   - run.finished  — run завершён терминальным статусом
//
// Exchanges:
//   - cascade.runs — события runs
//   - cascade.dlq  — dead letter queue
package events
