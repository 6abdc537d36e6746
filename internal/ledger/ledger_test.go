package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"medminder/internal/clock"
)

type failingKV struct {
	*MemoryKV
	failSet bool
}

func (f *failingKV) Set(key, value string) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(key, value)
}

func newTestLedger(t *testing.T, kv KV, now time.Time) (*Ledger, *clock.Fake) {
	t.Helper()

	c := clock.NewFake(now)
	l, err := New(kv, c, nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	return l, c
}

func seed(t *testing.T, kv KV, doses []TakenDose) {
	t.Helper()

	b, err := json.Marshal(doses)
	if err != nil {
		t.Fatalf("Failed to encode seed: %v", err)
	}
	if err := kv.Set(StorageKey, string(b)); err != nil {
		t.Fatalf("Failed to seed kv: %v", err)
	}
}

func TestRecordTakenVisibleAndPersisted(t *testing.T) {
	kv := NewMemoryKV()
	l, _ := newTestLedger(t, kv, time.Date(2025, 3, 10, 9, 0, 5, 0, time.Local))

	if l.IsTaken("m1", "09:00") {
		t.Fatal("Dose should not be taken initially")
	}

	if err := l.RecordTaken("m1", "09:00"); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}
	if !l.IsTaken("m1", "09:00") {
		t.Error("Recorded dose should be visible immediately")
	}
	if l.IsTaken("m1", "21:00") {
		t.Error("Other schedule time should not be taken")
	}

	raw, ok, _ := kv.Get(StorageKey)
	if !ok {
		t.Fatal("Expected ledger to be persisted")
	}
	var stored []TakenDose
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("Failed to decode stored ledger: %v", err)
	}
	if len(stored) != 1 || stored[0].Date != "2025-03-10" {
		t.Errorf("Unexpected stored ledger: %+v", stored)
	}
}

func TestRecordTakenTwiceKeepsOneEntry(t *testing.T) {
	l, _ := newTestLedger(t, NewMemoryKV(), time.Date(2025, 3, 10, 9, 0, 5, 0, time.Local))

	_ = l.RecordTaken("m1", "09:00")
	_ = l.RecordTaken("m1", "09:00")

	if n := len(l.Taken()); n != 1 {
		t.Errorf("Expected 1 taken entry, got %d", n)
	}
}

func TestReloadSurvivesRestartSameDay(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2025, 3, 10, 9, 0, 5, 0, time.Local)

	l, _ := newTestLedger(t, kv, now)
	_ = l.RecordTaken("m1", "09:00")

	reloaded, _ := newTestLedger(t, kv, now.Add(time.Hour))
	if !reloaded.IsTaken("m1", "09:00") {
		t.Error("Taken dose should survive reload on the same day")
	}
}

func TestPruneToTodayDropsOtherDays(t *testing.T) {
	kv := NewMemoryKV()
	seed(t, kv, []TakenDose{
		{MedicineID: "m1", ScheduleTime: "09:00", Date: "2025-03-09"},
		{MedicineID: "m1", ScheduleTime: "21:00", Date: "2025-03-10"},
		{MedicineID: "m2", ScheduleTime: "09:00", Date: "2025-03-11"},
	})

	l, _ := newTestLedger(t, kv, time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local))

	if l.IsTaken("m1", "09:00") {
		t.Error("Yesterday's record must not count as taken")
	}
	if !l.IsTaken("m1", "21:00") {
		t.Error("Today's record should be kept")
	}

	raw, _, _ := kv.Get(StorageKey)
	var stored []TakenDose
	_ = json.Unmarshal([]byte(raw), &stored)
	if len(stored) != 1 {
		t.Errorf("Expected pruned set to be persisted with 1 entry, got %d", len(stored))
	}
}

func TestDayRolloverPrunesLazily(t *testing.T) {
	l, c := newTestLedger(t, NewMemoryKV(), time.Date(2025, 3, 10, 23, 59, 0, 0, time.Local))

	_ = l.RecordTaken("m1", "23:59")
	c.Advance(2 * time.Minute)

	if l.IsTaken("m1", "23:59") {
		t.Error("Taken record should not carry over to the next day")
	}
	if len(l.Taken()) != 0 {
		t.Error("Expected empty ledger after rollover")
	}
}

func TestCorruptLedgerIsDiscarded(t *testing.T) {
	kv := NewMemoryKV()
	_ = kv.Set(StorageKey, "{not json")

	l, _ := newTestLedger(t, kv, time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local))
	if len(l.Taken()) != 0 {
		t.Error("Expected empty ledger after corrupt load")
	}
}

func TestSnoozeWindow(t *testing.T) {
	l, c := newTestLedger(t, NewMemoryKV(), time.Date(2025, 3, 10, 9, 0, 10, 0, time.Local))

	wake := l.Snooze("m1", "09:00", 5*time.Minute)
	if want := time.Date(2025, 3, 10, 9, 5, 10, 0, time.Local); !wake.Equal(want) {
		t.Fatalf("Expected wake %v, got %v", want, wake)
	}

	c.Set(time.Date(2025, 3, 10, 9, 3, 0, 0, time.Local))
	if !l.IsSnoozed("m1", "09:00") {
		t.Error("Expected dose snoozed at 09:03:00")
	}

	c.Set(time.Date(2025, 3, 10, 9, 5, 11, 0, time.Local))
	if l.IsSnoozed("m1", "09:00") {
		t.Error("Expected snooze expired after wake time")
	}
}

func TestSnoozeDefaultDuration(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	l, _ := newTestLedger(t, NewMemoryKV(), start)

	wake := l.Snooze("m1", "09:00", 0)
	if !wake.Equal(start.Add(DefaultSnooze)) {
		t.Errorf("Expected default snooze, got %v", wake)
	}
}

func TestRecordTakenClearsSnooze(t *testing.T) {
	l, _ := newTestLedger(t, NewMemoryKV(), time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local))

	l.Snooze("m1", "09:00", time.Minute)
	_ = l.RecordTaken("m1", "09:00")

	if _, ok := l.SnoozedUntil("m1", "09:00"); ok {
		t.Error("Taking a dose should drop its snooze entry")
	}
}

func TestPruneSnoozes(t *testing.T) {
	l, c := newTestLedger(t, NewMemoryKV(), time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local))

	l.Snooze("m1", "09:00", time.Minute)
	l.Snooze("m2", "09:00", 10*time.Minute)
	c.Advance(2 * time.Minute)

	if removed := l.PruneSnoozes(); removed != 1 {
		t.Errorf("Expected 1 expired snooze removed, got %d", removed)
	}
	if !l.IsSnoozed("m2", "09:00") {
		t.Error("Unexpired snooze should remain")
	}
}

func TestRecordTakenPersistFailureKeepsMemory(t *testing.T) {
	kv := &failingKV{MemoryKV: NewMemoryKV()}
	l, _ := newTestLedger(t, kv, time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local))

	kv.failSet = true
	if err := l.RecordTaken("m1", "09:00"); err == nil {
		t.Fatal("Expected persistence error")
	}
	if !l.IsTaken("m1", "09:00") {
		t.Error("Dose should still be taken locally after persist failure")
	}
}
