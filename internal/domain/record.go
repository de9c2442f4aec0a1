package domain

import "time"

// CompletionEntry — запись о завершении одного шага.
type CompletionEntry struct {
	// StepID — ID завершённого шага.
	StepID string `json:"step_id"`

	// Round — номер раунда планирования (начиная с 1), в котором
	// шаг выполнился.
	Round int `json:"round"`

	// BranchLabel — метка ветки, если шаг был router'ом.
	BranchLabel string `json:"branch_label,omitempty"`

	// CompletedAt — время завершения.
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionRecord — append-only трасса завершённых шагов.
//
// Записи добавляются монотонно в течение run'а и никогда не удаляются.
// Порядок записей детерминирован: внутри раунда — порядок регистрации
// шагов, между раундами — порядок раундов.
type CompletionRecord struct {
	entries []CompletionEntry
	index   map[string]int // stepID → позиция в entries
}

// NewCompletionRecord создаёт пустую трассу.
func NewCompletionRecord() *CompletionRecord {
	return &CompletionRecord{
		index: make(map[string]int),
	}
}

// Append добавляет запись о завершении шага.
// Повторное добавление того же шага игнорируется: шаг выполняется
// не более одного раза за run.
func (r *CompletionRecord) Append(entry CompletionEntry) {
	if _, exists := r.index[entry.StepID]; exists {
		return
	}
	r.index[entry.StepID] = len(r.entries)
	r.entries = append(r.entries, entry)
}

// Contains проверяет, завершён ли шаг.
func (r *CompletionRecord) Contains(stepID string) bool {
	_, exists := r.index[stepID]
	return exists
}

// BranchLabel возвращает метку ветки, с которой завершился шаг.
// Второй результат false, если шаг не завершён.
func (r *CompletionRecord) BranchLabel(stepID string) (string, bool) {
	pos, exists := r.index[stepID]
	if !exists {
		return "", false
	}
	return r.entries[pos].BranchLabel, true
}

// Len возвращает количество завершённых шагов.
func (r *CompletionRecord) Len() int {
	return len(r.entries)
}

// Entries возвращает копию трассы в порядке завершения.
func (r *CompletionRecord) Entries() []CompletionEntry {
	out := make([]CompletionEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
