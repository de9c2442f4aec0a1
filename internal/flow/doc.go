// Package flow содержит ядро оркестрации: реестр шагов с проверкой
// графа и чистый вычислитель eligibility.
//
// Registry — builder для набора шагов. Шаги регистрируются по одному
// (порядок регистрации — контрактный tie-break), Finalize разрешает
// ссылки trigger'ов, проверяет ацикличность и замораживает registry.
//
// Eligible/Satisfied — чистые функции: по трассе завершённых шагов
// (CompletionRecord) вычисляют, какие шаги готовы к выполнению.
// Unreached классифицирует незавершённые шаги на прунированные
// (отсечены веткой router'а — легитимно) и заблокированные (deadlock).
package flow
