// Package handlers содержит декларативные типы шагов для flow документов.
//
// # Обзор
//
// Handler — исполнитель конкретного типа шага. Каждый handler:
//   - Получает конфигурацию (уже отрендеренную через RenderConfig)
//   - Получает снимок разделяемого состояния раунда
//   - Возвращает дельту состояния и, для router шагов, метку ветвления
//
// Привязка к конкретному шагу flow делается через Bind: она рендерит
// конфигурацию на каждом вызове и упаковывает результат в domain.Handler.
//
// # Типы handlers
//
// ## http — HTTP запрос к внешнему API.
// Результат пишется в одно поле состояния (config "into",
// по умолчанию "<step_id>_response"), чтобы сиблинги раунда
// не конфликтовали по записям.
//
// ## delay — пауза между шагами (duration_sec / duration_ms).
//
// ## transform — трансформация данных через Go templates.
// Каждый mapping рендерится по снимку состояния и становится
// полем дельты.
//
// ## branch — ветвление для router шагов.
// Правила вычисляются по порядку, побеждает первое сработавшее.
// Дельта пустая: branch только выбирает метку.
//
// # Шаблоны
//
// Конфигурация любого handler'а может содержать Go template выражения:
//
//	{{ .State.field }}   — поле разделяемого состояния
//	{{ .Env.VAR_NAME }}  — переменная окружения
//
// Дополнительные функции: json, fromJSON, default, coalesce, join,
// split, contains, lower, upper, trim, replace и другие (template.go).
//
// # Обработка ошибок
//
// Handlers возвращают типизированные ошибки:
//
//	ErrHandlerNotFound   — тип не зарегистрирован
//	ErrInvalidConfig     — неверная конфигурация
//	ErrHandlerCancelled  — context отменён
//
// Ошибка handler'а фатальна для run'а: retry политика — снаружи ядра.
package handlers
