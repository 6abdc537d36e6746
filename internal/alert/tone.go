package alert

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"medminder/internal/logger"
)

const (
	toneSampleRate = 44100
	toneDuration   = 500 * time.Millisecond
	toneLowHz      = 800
	toneHighHz     = 1000
	toneVolume     = 0.3
)

// ToneSink plays a short two-pitch beep through the default audio device.
// Each PlayAlertTone starts one beep; ClearAlert cuts off whatever is still
// sounding.
type ToneSink struct {
	ctx *oto.Context
	pcm []byte
	log logger.Logger

	mu      sync.Mutex
	playing []*oto.Player
}

// NewToneSink opens the audio device. It blocks until the device is ready,
// so call it at startup rather than from inside an alert.
func NewToneSink(log logger.Logger) (*ToneSink, error) {
	if log == nil {
		log = logger.Nop()
	}

	op := &oto.NewContextOptions{
		SampleRate:   toneSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	<-ready

	return &ToneSink{
		ctx: ctx,
		pcm: tonePCM(toneSampleRate, toneDuration),
		log: log.With(logger.Fields{"component": "tone"}),
	}, nil
}

func (s *ToneSink) ShowAlert(title, body, tag string) {}

func (s *ToneSink) PlayAlertTone() {
	p := s.ctx.NewPlayer(bytes.NewReader(s.pcm))
	p.Play()

	s.mu.Lock()
	s.playing = append(s.playing, p)
	s.mu.Unlock()

	go s.reap(p)
}

// reap closes p once it has finished or been paused.
func (s *ToneSink) reap(p *oto.Player) {
	for p.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := p.Close(); err != nil {
		s.log.Warn("failed to close audio player", logger.Fields{"error": err})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.playing {
		if q == p {
			s.playing = append(s.playing[:i], s.playing[i+1:]...)
			break
		}
	}
}

func (s *ToneSink) ClearAlert(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.playing {
		p.Pause()
	}
}

// tonePCM renders a mono signed 16-bit little-endian beep: the first half at
// toneLowHz, the second at toneHighHz, with a linear fade out.
func tonePCM(sampleRate int, d time.Duration) []byte {
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	buf := make([]byte, 2*n)

	phase := 0.0
	for i := 0; i < n; i++ {
		freq := float64(toneLowHz)
		if i >= n/2 {
			freq = toneHighHz
		}
		phase += 2 * math.Pi * freq / float64(sampleRate)

		gain := toneVolume * (1 - float64(i)/float64(n))
		sample := int16(math.Sin(phase) * gain * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(sample))
	}
	return buf
}
