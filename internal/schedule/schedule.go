// Package schedule derives dose instances from medicine schedules.
//
// Everything here is a pure function of its inputs. Schedule times are naive
// local wall-clock "HH:MM" strings; instants are built in the location of the
// reference time passed in.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"medminder/internal/models"
)

const minutesPerDay = 24 * 60

var ErrInvalidTime = errors.New("invalid schedule time")

// Dose is one (medicine, time-of-day) occurrence for a given day.
type Dose struct {
	Medicine    *models.Medicine
	Time        string // original HH:MM
	MinuteOfDay int
	Display     string // hh:mm AM/PM
}

// NextDose is the soonest upcoming dose instance.
type NextDose struct {
	Medicine *models.Medicine
	Time     string
	At       time.Time
}

// ParseClock parses a 24-hour "HH:MM" string into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	if !allDigits(hh) || !allDigits(mm) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hours, err := strconv.Atoi(hh)
	if err != nil || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	return hours*60 + minutes, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateTimes checks that times is non-empty and every entry parses.
func ValidateTimes(times []string) error {
	if len(times) == 0 {
		return fmt.Errorf("%w: schedule is empty", ErrInvalidTime)
	}
	for _, t := range times {
		if _, err := ParseClock(t); err != nil {
			return err
		}
	}
	return nil
}

// FormatDisplay renders minutes after midnight as "hh:mm AM/PM".
func FormatDisplay(minuteOfDay int) string {
	minuteOfDay = ((minuteOfDay % minutesPerDay) + minutesPerDay) % minutesPerDay
	h := minuteOfDay / 60
	m := minuteOfDay % 60

	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%02d:%02d %s", h12, m, suffix)
}

// Occurrence returns the instant of minuteOfDay on day's calendar date.
func Occurrence(day time.Time, minuteOfDay int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, minuteOfDay/60, minuteOfDay%60, 0, 0, day.Location())
}

// TodaysSchedule explodes every medicine's schedule into dose instances,
// ordered by minute of day. Unparsable times are left out. The sort is
// stable, so instances at the same minute keep input order.
func TodaysSchedule(medicines []*models.Medicine) []Dose {
	var doses []Dose
	for _, med := range medicines {
		for _, t := range med.Schedule {
			mod, err := ParseClock(t)
			if err != nil {
				continue
			}
			doses = append(doses, Dose{
				Medicine:    med,
				Time:        t,
				MinuteOfDay: mod,
				Display:     FormatDisplay(mod),
			})
		}
	}

	sort.SliceStable(doses, func(i, j int) bool {
		return doses[i].MinuteOfDay < doses[j].MinuteOfDay
	})
	return doses
}

// FindNextDose returns the dose with the smallest instant strictly after now.
// When nothing remains today, every time is considered for tomorrow. Ties
// resolve to the first (medicine, time) in input order.
func FindNextDose(medicines []*models.Medicine, now time.Time) (NextDose, bool) {
	if next, ok := scanDay(medicines, now, now); ok {
		return next, true
	}
	return scanDay(medicines, now.AddDate(0, 0, 1), time.Time{})
}

func scanDay(medicines []*models.Medicine, day, after time.Time) (NextDose, bool) {
	var best NextDose
	found := false

	for _, med := range medicines {
		for _, t := range med.Schedule {
			mod, err := ParseClock(t)
			if err != nil {
				continue
			}
			at := Occurrence(day, mod)
			if !after.IsZero() && !at.After(after) {
				continue
			}
			if !found || at.Before(best.At) {
				best = NextDose{Medicine: med, Time: t, At: at}
				found = true
			}
		}
	}
	return best, found
}

// Countdown renders the time left until next as HH:MM:SS, or "Time to take!"
// once it is due.
func Countdown(next, now time.Time) string {
	diff := next.Sub(now)
	if diff <= 0 {
		return "Time to take!"
	}

	total := int(diff / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// NextFire returns the next instant at or after now at which minuteOfDay
// starts (second zero), looking at most one day ahead.
func NextFire(minuteOfDay int, now time.Time) time.Time {
	at := Occurrence(now, minuteOfDay)
	if at.Before(now) {
		at = Occurrence(now.AddDate(0, 0, 1), minuteOfDay)
	}
	return at
}
