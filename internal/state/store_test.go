package state

import (
	"errors"
	"testing"

	"github.com/shaiso/Cascade/internal/domain"
)

func TestStore_SnapshotIsolation(t *testing.T) {
	store := NewStore(domain.State{"topic": "orders", "nested": map[string]any{"k": "v"}})

	snap := store.Snapshot()
	snap["topic"] = "mutated"
	snap["nested"].(map[string]any)["k"] = "mutated"

	fresh := store.Snapshot()
	if fresh["topic"] != "orders" {
		t.Error("mutating a snapshot must not affect the store")
	}
	if fresh["nested"].(map[string]any)["k"] != "v" {
		t.Error("nested values must be deep-copied")
	}
}

func TestStore_InitialStateCopied(t *testing.T) {
	initial := domain.State{"count": 1}
	store := NewStore(initial)

	initial["count"] = 99

	if store.Snapshot()["count"] != 1 {
		t.Error("store must copy the initial state")
	}
}

func TestStore_ApplyRound_Merge(t *testing.T) {
	store := NewStore(domain.State{"base": "x"})

	snap, err := store.ApplyRound([]RoundDelta{
		{StepID: "a", Delta: domain.Delta{"left": 1}},
		{StepID: "b", Delta: domain.Delta{"right": 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap["base"] != "x" || snap["left"] != 1 || snap["right"] != 2 {
		t.Errorf("unexpected merged state: %v", snap)
	}
}

func TestStore_ApplyRound_Conflict(t *testing.T) {
	store := NewStore(domain.State{})

	_, err := store.ApplyRound([]RoundDelta{
		{StepID: "a", Delta: domain.Delta{"result": "one"}},
		{StepID: "b", Delta: domain.Delta{"result": "two"}},
	})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatal("expected ConflictError")
	}
	if conflict.Field != "result" {
		t.Errorf("expected field result, got %s", conflict.Field)
	}
	if conflict.FirstStep != "a" || conflict.SecondStep != "b" {
		t.Errorf("conflict should name both writers: %+v", conflict)
	}
	if conflict.FirstValue != "one" || conflict.SecondValue != "two" {
		t.Errorf("conflict should carry both values: %+v", conflict)
	}
}

func TestStore_ApplyRound_EqualValuesNoConflict(t *testing.T) {
	store := NewStore(domain.State{})

	// Идемпотентные записи одного значения — не конфликт
	snap, err := store.ApplyRound([]RoundDelta{
		{StepID: "a", Delta: domain.Delta{"flag": true}},
		{StepID: "b", Delta: domain.Delta{"flag": true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap["flag"] != true {
		t.Error("flag should be set")
	}
}

func TestStore_ApplyRound_ConflictIsAtomic(t *testing.T) {
	store := NewStore(domain.State{"keep": "original"})

	_, err := store.ApplyRound([]RoundDelta{
		{StepID: "a", Delta: domain.Delta{"keep": "changed", "extra": 1}},
		{StepID: "b", Delta: domain.Delta{"keep": "other"}},
	})
	if err == nil {
		t.Fatal("expected conflict")
	}

	snap := store.Snapshot()
	if snap["keep"] != "original" {
		t.Error("conflicting round must not be applied at all")
	}
	if _, exists := snap["extra"]; exists {
		t.Error("no delta of a conflicting round may leak into state")
	}
}

func TestStore_ApplyRound_LaterRoundOverwrites(t *testing.T) {
	store := NewStore(domain.State{})

	if _, err := store.ApplyRound([]RoundDelta{
		{StepID: "a", Delta: domain.Delta{"phase": "draft"}},
	}); err != nil {
		t.Fatalf("round 1: %v", err)
	}

	// Перезапись между раундами легальна: конфликт — это
	// только конкуренция внутри одного раунда
	snap, err := store.ApplyRound([]RoundDelta{
		{StepID: "b", Delta: domain.Delta{"phase": "final"}},
	})
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if snap["phase"] != "final" {
		t.Error("later rounds may overwrite earlier fields")
	}
}
