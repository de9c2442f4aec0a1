// Package runner доводит выполнение flow до терминального состояния.
//
// Один логический планировщик гонит раунды: eligible шаги раунда
// выполняются конкурентно, их дельты применяются к состоянию одной
// барьерной операцией после возврата всех handlers. Раунды не
// перекрываются, поэтому шаг никогда не видит дельту соседа по раунду.
//
// Терминальные статусы — COMPLETED, DEADLOCKED, FAILED. Deadlock —
// легитимный итог с диагностикой (какие шаги не стали eligible и
// почему), а не ошибка процесса. Retry в ядре нет.
package runner
