package domain

// UnreachedStep — диагностика шага, который так и не стал eligible.
//
// Сообщается в RunResult при DEADLOCKED: какой trigger не выполнен
// и каких предшественников не хватает.
type UnreachedStep struct {
	// StepID — ID незапущенного шага.
	StepID string `json:"step_id"`

	// Trigger — условие, которое не было удовлетворено.
	Trigger Trigger `json:"trigger"`

	// Missing — предшественники, отсутствующие в CompletionRecord
	// (для on_branch — router, если он не завершился, либо пусто,
	// если router вернул другую метку).
	Missing []string `json:"missing,omitempty"`

	// Pruned — true, если шаг отсечён веткой router'а намеренно.
	// Прунированные шаги не блокируют статус COMPLETED.
	Pruned bool `json:"pruned,omitempty"`
}

// RunResult — итог выполнения run.
type RunResult struct {
	// Status — терминальный статус: COMPLETED, DEADLOCKED или FAILED.
	Status RunStatus `json:"status"`

	// FinalState — финальное состояние (или частичное при FAILED).
	FinalState State `json:"final_state"`

	// Trace — упорядоченная трасса завершённых шагов.
	Trace []CompletionEntry `json:"trace"`

	// Rounds — количество выполненных раундов планирования.
	Rounds int `json:"rounds"`

	// FailedStep — ID шага, вызвавшего FAILED (пусто для cancellation
	// и конфликтов state).
	FailedStep string `json:"failed_step,omitempty"`

	// Err — причина FAILED. Не сериализуется; для хранения
	// используется текстовое поле Run.Error.
	Err error `json:"-"`

	// Unreached — шаги, не достигнутые к моменту завершения,
	// с причинами (заполняется для DEADLOCKED и COMPLETED с прунингом).
	Unreached []UnreachedStep `json:"unreached,omitempty"`
}
