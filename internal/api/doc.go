// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go      — Handler с DI (хранилища, publisher, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - flow_handler.go — обработчики для /flows
//   - run_handler.go  — обработчики для /runs
//
// API предоставляет REST endpoints для управления flows и runs.
// Flows адресуются по имени, runs — по UUID.
package api
