package agent

import (
	"context"
	"time"

	"medminder/internal/clock"
	"medminder/internal/logger"
	"medminder/internal/models"
)

// MedicineSource lists the user's active medicines.
type MedicineSource interface {
	ListMedicines(ctx context.Context) ([]*models.Medicine, error)
}

// MedicineSetter receives each refreshed list.
type MedicineSetter interface {
	SetMedicines(medicines []*models.Medicine)
}

const defaultRefreshInterval = time.Minute

// Runner keeps the engine's medicine list in step with the server. A failed
// refresh keeps the previous list, so alarms keep ringing while offline.
type Runner struct {
	source   MedicineSource
	target   MedicineSetter
	clock    clock.Clock
	log      logger.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewRunner(source MedicineSource, target MedicineSetter, c clock.Clock, log logger.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		source:   source,
		target:   target,
		clock:    c,
		log:      log.With(logger.Fields{"component": "refresh"}),
		interval: interval,
		timeout:  30 * time.Second,
	}
}

// Refresh fetches the list once and hands it to the engine.
func (r *Runner) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	meds, err := r.source.ListMedicines(ctx)
	if err != nil {
		return err
	}
	r.target.SetMedicines(meds)
	r.log.Debug("medicines refreshed", logger.Fields{"count": len(meds)})
	return nil
}

// Run refreshes every interval until ctx is cancelled. The first refresh
// happens one interval in; callers load the initial list with Refresh.
func (r *Runner) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	for {
		timer := r.clock.AfterFunc(r.interval, func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-wake:
		}

		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("failed to refresh medicines", logger.Fields{"error": err})
		}
	}
}
