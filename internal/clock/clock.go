// Package clock provides the time source used by the reminder core.
//
// Core packages (schedule, ledger, alarm) never call time.Now directly; they
// take a Clock so tests can drive wall-clock time and timers by hand.
package clock

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real uses the system clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewReal returns a Clock backed by the system time.
func NewReal() Clock {
	return Real{}
}

var _ Clock = Real{}
