// Package alarm implements the reminder state machine: it watches the wall
// clock against each medicine's schedule, rings one alarm at a time, and
// handles acknowledge, snooze and stop.
package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medminder/internal/clock"
	"medminder/internal/intake"
	"medminder/internal/ledger"
	"medminder/internal/logger"
	"medminder/internal/models"
	"medminder/internal/schedule"
)

// AlertSink receives the visual and audible side effects of a ringing alarm.
// Calls are made while the engine holds its lock, so implementations must
// return promptly and must not call back into the engine.
type AlertSink interface {
	ShowAlert(title, body, tag string)
	PlayAlertTone()
	ClearAlert(tag string)
}

// Recorder durably records intake events.
type Recorder interface {
	Record(ctx context.Context, req intake.Request) error
}

type Config struct {
	UserID         string
	PollInterval   time.Duration
	FiringWindow   time.Duration
	SnoozeDuration time.Duration
	ToneInterval   time.Duration
	RecordTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		FiringWindow:   30 * time.Second,
		SnoozeDuration: ledger.DefaultSnooze,
		ToneInterval:   1500 * time.Millisecond,
		RecordTimeout:  10 * time.Second,
	}
}

// State is a snapshot of the alarm. The zero value is Idle.
type State struct {
	Ringing      bool
	Medicine     *models.Medicine
	ScheduleTime string
	AlarmTime    time.Time
}

type Engine struct {
	cfg      Config
	clock    clock.Clock
	ledger   *ledger.Ledger
	recorder Recorder
	sink     AlertSink
	log      logger.Logger

	mu        sync.Mutex
	state     State
	medicines []*models.Medicine
	badTimes  map[string]bool
	toneTimer clock.Timer
	toneGen   uint64

	wake chan struct{}
	wg   sync.WaitGroup
}

// New builds an engine around an already loaded (and therefore pruned)
// ledger. recorder may be nil, in which case acknowledgements stay local.
func New(cfg Config, c clock.Clock, l *ledger.Ledger, recorder Recorder, sink AlertSink, log logger.Logger) *Engine {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.FiringWindow <= 0 {
		cfg.FiringWindow = def.FiringWindow
	}
	if cfg.SnoozeDuration <= 0 {
		cfg.SnoozeDuration = def.SnoozeDuration
	}
	if cfg.ToneInterval <= 0 {
		cfg.ToneInterval = def.ToneInterval
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Engine{
		cfg:      cfg,
		clock:    c,
		ledger:   l,
		recorder: recorder,
		sink:     sink,
		log:      log.With(logger.Fields{"component": "alarm"}),
		badTimes: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// SetMedicines replaces the watched medicine list. Completed medicines are
// ignored.
func (e *Engine) SetMedicines(medicines []*models.Medicine) {
	active := make([]*models.Medicine, 0, len(medicines))
	for _, m := range medicines {
		if m != nil && m.IsActive() {
			active = append(active, m)
		}
	}

	e.mu.Lock()
	e.medicines = active
	e.mu.Unlock()

	e.signal()
}

// Medicines returns the watched medicine list.
func (e *Engine) Medicines() []*models.Medicine {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.Medicine, len(e.medicines))
	copy(out, e.medicines)
	return out
}

// State returns a snapshot of the current alarm.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TakenDoses returns today's ledger.
func (e *Engine) TakenDoses() []ledger.TakenDose {
	return e.ledger.Taken()
}

// Tick evaluates the schedule against the current time.
func (e *Engine) Tick() {
	e.tick(e.clock.Now())
}

// tick walks every (medicine, time) pair in input order. A pair matches when
// now falls in the scheduled minute and within the firing window. The first
// match that is neither taken nor snoozed rings; the rest are dropped because
// only one alarm rings at a time.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	currentMinute := now.Hour()*60 + now.Minute()
	// Whole seconds only: 30.9s into the minute still counts as second 30
	offset := now.Sub(now.Truncate(time.Minute)).Truncate(time.Second)
	inWindow := offset <= e.cfg.FiringWindow

	for _, med := range e.medicines {
		for _, t := range med.Schedule {
			mod, err := schedule.ParseClock(t)
			if err != nil {
				e.warnBadTimeLocked(med, t, err)
				continue
			}
			if mod != currentMinute || !inWindow || e.state.Ringing {
				continue
			}
			if e.ledger.IsTaken(med.ID, t) || e.ledger.IsSnoozed(med.ID, t) {
				continue
			}

			e.ringLocked(med, t, now)
		}
	}
}

func (e *Engine) warnBadTimeLocked(med *models.Medicine, t string, err error) {
	key := med.ID + "\x00" + t
	if e.badTimes[key] {
		return
	}
	e.badTimes[key] = true
	e.log.Warn("skipping malformed schedule time", logger.Fields{
		"medicine_id": med.ID,
		"medicine":    med.Name,
		"time":        t,
		"error":       err,
	})
}

func (e *Engine) ringLocked(med *models.Medicine, scheduleTime string, now time.Time) {
	e.state = State{
		Ringing:      true,
		Medicine:     med,
		ScheduleTime: scheduleTime,
		AlarmTime:    now,
	}
	e.log.Info("alarm triggered", logger.Fields{
		"medicine_id": med.ID,
		"medicine":    med.Name,
		"time":        scheduleTime,
	})

	if e.sink != nil {
		e.sink.ShowAlert(
			fmt.Sprintf("Time to take %s!", med.Name),
			fmt.Sprintf("It's time to take your %s dose of %s", med.Dosage, med.Name),
			alertTag(med.ID, scheduleTime),
		)
	}

	e.toneGen++
	e.playToneLocked(e.toneGen)
}

// playToneLocked plays one tone and re-arms itself every ToneInterval until
// the generation changes.
func (e *Engine) playToneLocked(gen uint64) {
	if !e.state.Ringing || gen != e.toneGen {
		return
	}
	if e.sink != nil {
		e.sink.PlayAlertTone()
	}
	e.toneTimer = e.clock.AfterFunc(e.cfg.ToneInterval, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.playToneLocked(gen)
	})
}

// Stop silences the alarm and returns to Idle. Pending snooze re-checks are
// left alone.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.toneGen++
	if e.toneTimer != nil {
		e.toneTimer.Stop()
		e.toneTimer = nil
	}
	if e.state.Ringing && e.sink != nil {
		e.sink.ClearAlert(alertTag(e.state.Medicine.ID, e.state.ScheduleTime))
	}
	e.state = State{}
}

// Acknowledge marks the ringing dose as taken. The ledger is updated locally
// first; the durable record is written in the background and a failure there
// is only logged. It reports false when no alarm was ringing.
func (e *Engine) Acknowledge() bool {
	e.mu.Lock()
	if !e.state.Ringing {
		e.mu.Unlock()
		return false
	}

	med := e.state.Medicine
	scheduleTime := e.state.ScheduleTime
	e.stopLocked()

	if err := e.ledger.RecordTaken(med.ID, scheduleTime); err != nil {
		e.log.Warn("failed to persist taken dose locally", logger.Fields{
			"medicine_id": med.ID,
			"time":        scheduleTime,
			"error":       err,
		})
	}
	e.mu.Unlock()

	e.recordAsync(intake.Request{
		UserID:       e.cfg.UserID,
		MedicineID:   med.ID,
		MedicineName: med.Name,
		ScheduledAt:  scheduleTime,
		Status:       models.IntakeTaken,
	})
	return true
}

func (e *Engine) recordAsync(req intake.Request) {
	if e.recorder == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RecordTimeout)
		defer cancel()

		if err := e.recorder.Record(ctx, req); err != nil {
			e.log.Error("failed to record intake", logger.Fields{
				"medicine_id": req.MedicineID,
				"time":        req.ScheduledAt,
				"error":       err,
			})
			return
		}
		e.log.Info("intake recorded", logger.Fields{
			"medicine_id": req.MedicineID,
			"time":        req.ScheduledAt,
		})
	}()
}

// Snooze defers the ringing dose by the snooze duration and re-rings it
// afterwards unless it was taken in the meantime. It reports false when no
// alarm was ringing.
func (e *Engine) Snooze() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Ringing {
		return false
	}

	med := e.state.Medicine
	scheduleTime := e.state.ScheduleTime
	e.stopLocked()
	e.snoozeLocked(med, scheduleTime)
	return true
}

// Dismiss silences the alarm. There is no way to silence a dose without
// deferring it, so this is the same as Snooze.
func (e *Engine) Dismiss() bool {
	return e.Snooze()
}

func (e *Engine) snoozeLocked(med *models.Medicine, scheduleTime string) {
	day := e.ledger.Today()
	wake := e.ledger.Snooze(med.ID, scheduleTime, e.cfg.SnoozeDuration)
	e.log.Info("alarm snoozed", logger.Fields{
		"medicine_id": med.ID,
		"time":        scheduleTime,
		"until":       wake.Format(time.RFC3339),
	})

	e.clock.AfterFunc(wake.Sub(e.clock.Now()), func() {
		e.recheck(med.ID, scheduleTime, day, wake)
	})
}

// recheck runs when a snooze window ends. The literal scheduled minute has
// passed, so the dose is re-rung directly instead of waiting for a poll match.
func (e *Engine) recheck(medicineID, scheduleTime, day string, wake time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.Today() != day {
		return
	}
	if e.ledger.IsTaken(medicineID, scheduleTime) {
		return
	}
	if until, ok := e.ledger.SnoozedUntil(medicineID, scheduleTime); ok && until.After(wake) {
		// Re-snoozed since; that snooze owns its own re-check.
		return
	}

	med := e.findLocked(medicineID)
	if med == nil {
		return
	}

	if e.state.Ringing {
		if e.state.Medicine.ID == medicineID && e.state.ScheduleTime == scheduleTime {
			return
		}
		e.snoozeLocked(med, scheduleTime)
		return
	}

	e.ringLocked(med, scheduleTime, e.clock.Now())
}

func (e *Engine) findLocked(medicineID string) *models.Medicine {
	for _, m := range e.medicines {
		if m.ID == medicineID {
			return m
		}
	}
	return nil
}

// Run drives the engine until ctx is cancelled. Each iteration ticks, then
// sleeps until the next scheduled minute starts or PollInterval elapses,
// whichever is sooner. SetMedicines wakes it early.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("alarm engine started", logger.Fields{"poll_interval": e.cfg.PollInterval.String()})

	for {
		e.Tick()
		e.ledger.PruneSnoozes()

		timer := e.clock.AfterFunc(e.nextDelay(e.clock.Now()), e.signal)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.Stop()
			e.log.Info("alarm engine stopped", nil)
			return ctx.Err()
		case <-e.wake:
			timer.Stop()
		}
	}
}

// nextDelay is the time until the next scheduled minute begins, capped at
// PollInterval so a suspended process still catches the firing window.
func (e *Engine) nextDelay(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := e.cfg.PollInterval
	for _, med := range e.medicines {
		for _, t := range med.Schedule {
			mod, err := schedule.ParseClock(t)
			if err != nil {
				continue
			}
			at := schedule.NextFire(mod, now)
			if !at.After(now) {
				at = at.AddDate(0, 0, 1)
			}
			if d := at.Sub(now); d < delay {
				delay = d
			}
		}
	}
	return delay
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close waits for in-flight intake records to finish.
func (e *Engine) Close() {
	e.wg.Wait()
}

func alertTag(medicineID, scheduleTime string) string {
	return fmt.Sprintf("medicine-%s-%s", medicineID, scheduleTime)
}
