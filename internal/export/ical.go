// Package export renders medicine schedules and intake history as iCalendar,
// CSV and PDF documents.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"medminder/internal/models"
	"medminder/internal/schedule"
)

const (
	ProductID = "-//medminder//schedule//EN"

	// floating local time, schedules carry no zone
	floatingLayout = "20060102T150405"

	doseEventLength = 15 * time.Minute
)

// Calendar builds one daily recurring event per (medicine, time). Completed
// medicines and unparsable times are left out. The series starts on the day
// the medicine was added and runs for DurationDays occurrences when that is
// positive, otherwise forever.
func Calendar(medicines []*models.Medicine, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText("X-WR-CALNAME", "Medicine schedule")

	for _, med := range medicines {
		if !med.IsActive() {
			continue
		}
		firstDay := med.CreatedAt
		if firstDay.IsZero() {
			firstDay = now
		}
		for _, t := range med.Schedule {
			mod, err := schedule.ParseClock(t)
			if err != nil {
				continue
			}
			cal.Children = append(cal.Children, doseEvent(med, mod, firstDay.In(now.Location()), now).Component)
		}
	}
	return cal
}

func doseEvent(med *models.Medicine, minuteOfDay int, firstDay, now time.Time) *ical.Event {
	start := schedule.Occurrence(firstDay, minuteOfDay)

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%04d@medminder", med.ID, minuteOfDay))
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.Set(floatingProp(ical.PropDateTimeStart, start))
	event.Props.Set(floatingProp(ical.PropDateTimeEnd, start.Add(doseEventLength)))
	event.Props.SetText(ical.PropSummary, "Take "+med.Name)
	event.Props.SetText(ical.PropDescription, describe(med))

	rule := "FREQ=DAILY"
	if med.DurationDays > 0 {
		rule += fmt.Sprintf(";COUNT=%d", med.DurationDays)
	}
	event.Props.Set(&ical.Prop{Name: ical.PropRecurrenceRule, Params: ical.Params{}, Value: rule})

	return event
}

func floatingProp(name string, t time.Time) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = t.Format(floatingLayout)
	return prop
}

func describe(med *models.Medicine) string {
	var parts []string
	if med.Dosage != "" {
		parts = append(parts, "Dosage: "+med.Dosage)
	}
	if med.Timing != "" {
		parts = append(parts, "Timing: "+med.Timing)
	}
	if med.Use != "" {
		parts = append(parts, "Use: "+med.Use)
	}
	return strings.Join(parts, "\n")
}

// WriteCalendar encodes Calendar(medicines, now) to w.
func WriteCalendar(w io.Writer, medicines []*models.Medicine, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(medicines, now)); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}
