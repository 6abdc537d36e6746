// Package ledger tracks which dose instances were acknowledged today and
// which are inside a snooze window.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"medminder/internal/clock"
	"medminder/internal/logger"
)

// StorageKey is the key under which taken doses are persisted.
const StorageKey = "medminder-taken-doses"

// DefaultSnooze is the snooze period used when none is configured.
const DefaultSnooze = 5 * time.Minute

const dateLayout = "2006-01-02"

// KV is the local durable key-value store backing the ledger.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// TakenDose records that a scheduled time was satisfied on a date.
type TakenDose struct {
	MedicineID   string `json:"medicineId"`
	ScheduleTime string `json:"scheduleTime"`
	Date         string `json:"date"` // YYYY-MM-DD, local
}

type doseKey struct {
	medicineID   string
	scheduleTime string
	date         string
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	kv      KV
	clock   clock.Clock
	log     logger.Logger
	day     string
	taken   []TakenDose
	snoozes map[doseKey]time.Time
}

// New loads the persisted taken doses and prunes everything not dated today.
// A corrupt stored value is logged and replaced by an empty set.
func New(kv KV, c clock.Clock, log logger.Logger) (*Ledger, error) {
	if log == nil {
		log = logger.Nop()
	}
	l := &Ledger{
		kv:      kv,
		clock:   c,
		log:     log,
		snoozes: make(map[doseKey]time.Time),
	}

	raw, ok, err := kv.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load taken doses: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &l.taken); err != nil {
			log.Warn("discarding unreadable taken-dose ledger", logger.Fields{"error": err})
			l.taken = nil
		}
	}

	if err := l.PruneToToday(); err != nil {
		return nil, err
	}
	return l, nil
}

// Today returns the ledger's notion of the current local date.
func (l *Ledger) Today() string {
	return l.clock.Now().Format(dateLayout)
}

// PruneToToday drops taken records and snooze entries that do not belong to
// today and persists the result.
func (l *Ledger) PruneToToday() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pruneLocked(l.Today())
}

func (l *Ledger) pruneLocked(today string) error {
	l.day = today

	kept := make([]TakenDose, 0, len(l.taken))
	for _, d := range l.taken {
		if d.Date == today {
			kept = append(kept, d)
		}
	}
	l.taken = kept
	l.pruneSnoozesLocked()

	return l.persistLocked()
}

// rolloverLocked prunes lazily when the calendar day has changed since the
// last access.
func (l *Ledger) rolloverLocked() string {
	today := l.Today()
	if today != l.day {
		if err := l.pruneLocked(today); err != nil {
			l.log.Warn("failed to persist pruned ledger", logger.Fields{"error": err})
		}
	}
	return today
}

// IsTaken reports whether the dose was acknowledged today.
func (l *Ledger) IsTaken(medicineID, scheduleTime string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.rolloverLocked()
	return l.isTakenLocked(medicineID, scheduleTime, today)
}

func (l *Ledger) isTakenLocked(medicineID, scheduleTime, date string) bool {
	for _, d := range l.taken {
		if d.MedicineID == medicineID && d.ScheduleTime == scheduleTime && d.Date == date {
			return true
		}
	}
	return false
}

// RecordTaken marks the dose taken for today and persists immediately. The
// in-memory set is updated even when persisting fails.
func (l *Ledger) RecordTaken(medicineID, scheduleTime string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.rolloverLocked()
	delete(l.snoozes, doseKey{medicineID, scheduleTime, today})

	if l.isTakenLocked(medicineID, scheduleTime, today) {
		return nil
	}
	l.taken = append(l.taken, TakenDose{
		MedicineID:   medicineID,
		ScheduleTime: scheduleTime,
		Date:         today,
	})
	return l.persistLocked()
}

// Snooze defers the dose until now+d and returns the wake time. A
// non-positive d uses DefaultSnooze.
func (l *Ledger) Snooze(medicineID, scheduleTime string, d time.Duration) time.Time {
	if d <= 0 {
		d = DefaultSnooze
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.rolloverLocked()
	wake := l.clock.Now().Add(d)
	l.snoozes[doseKey{medicineID, scheduleTime, today}] = wake
	return wake
}

// IsSnoozed reports whether the dose is inside an unexpired snooze window.
func (l *Ledger) IsSnoozed(medicineID, scheduleTime string) bool {
	wake, ok := l.SnoozedUntil(medicineID, scheduleTime)
	return ok && l.clock.Now().Before(wake)
}

// SnoozedUntil returns the stored wake time for the dose, expired or not.
func (l *Ledger) SnoozedUntil(medicineID, scheduleTime string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.rolloverLocked()
	wake, ok := l.snoozes[doseKey{medicineID, scheduleTime, today}]
	return wake, ok
}

// PruneSnoozes drops snooze entries whose wake time has passed or that
// belong to another day, returning how many were removed.
func (l *Ledger) PruneSnoozes() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pruneSnoozesLocked()
}

func (l *Ledger) pruneSnoozesLocked() int {
	now := l.clock.Now()
	today := now.Format(dateLayout)

	removed := 0
	for k, wake := range l.snoozes {
		if k.date != today || !now.Before(wake) {
			delete(l.snoozes, k)
			removed++
		}
	}
	return removed
}

// Taken returns a copy of today's taken doses.
func (l *Ledger) Taken() []TakenDose {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()
	out := make([]TakenDose, len(l.taken))
	copy(out, l.taken)
	return out
}

func (l *Ledger) persistLocked() error {
	b, err := json.Marshal(l.taken)
	if err != nil {
		return fmt.Errorf("failed to encode taken doses: %w", err)
	}
	if err := l.kv.Set(StorageKey, string(b)); err != nil {
		return fmt.Errorf("failed to persist taken doses: %w", err)
	}
	return nil
}
