// Package alert provides the side effects of a ringing alarm: log lines, a
// terminal banner with bell, and an audible tone.
//
// Every sink is called with the alarm engine's lock held and must return
// promptly.
package alert

import (
	"fmt"
	"io"
	"sync"

	"medminder/internal/logger"
)

type Sink interface {
	ShowAlert(title, body, tag string)
	PlayAlertTone()
	ClearAlert(tag string)
}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) ShowAlert(title, body, tag string) {
	for _, s := range m {
		s.ShowAlert(title, body, tag)
	}
}

func (m Multi) PlayAlertTone() {
	for _, s := range m {
		s.PlayAlertTone()
	}
}

func (m Multi) ClearAlert(tag string) {
	for _, s := range m {
		s.ClearAlert(tag)
	}
}

// LogSink records alerts in the structured log. Tones are not logged; they
// repeat every second or two.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log.With(logger.Fields{"component": "alert"})}
}

func (s *LogSink) ShowAlert(title, body, tag string) {
	s.log.Info("alert shown", logger.Fields{"title": title, "body": body, "tag": tag})
}

func (s *LogSink) PlayAlertTone() {}

func (s *LogSink) ClearAlert(tag string) {
	s.log.Info("alert cleared", logger.Fields{"tag": tag})
}

// Terminal writes a banner for each alert and rings the terminal bell for
// each tone.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) ShowAlert(title, body, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "\n*** %s ***\n%s\n", title, body)
}

func (t *Terminal) PlayAlertTone() {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.w, "\a")
}

func (t *Terminal) ClearAlert(tag string) {}
