package repository

import (
	"testing"
	"time"

	"medminder/internal/clock"
	"medminder/internal/ledger"
)

func TestKVRepository_GetSet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewKVRepository(db)

	if _, ok, err := repo.Get("missing"); err != nil || ok {
		t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := repo.Set("k", "v1"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := repo.Set("k", "v2"); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}

	v, ok, err := repo.Get("k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("Expected v2, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestKVRepository_BacksLedgerAcrossRestart(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	c := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 5, 0, time.Local))

	l, err := ledger.New(NewKVRepository(db), c, nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	if err := l.RecordTaken("m1", "09:00"); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}

	reloaded, err := ledger.New(NewKVRepository(db), c, nil)
	if err != nil {
		t.Fatalf("Failed to reload ledger: %v", err)
	}
	if !reloaded.IsTaken("m1", "09:00") {
		t.Error("Expected taken dose to survive restart")
	}
}
