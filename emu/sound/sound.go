// Package sound implements the machine's tone capability as a square
// wave played through beep's speaker.
package sound

import (
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

const (
	sampleRate = beep.SampleRate(44100)
	toneHz     = 440.0
	volume     = 0.25
)

// Buzzer is an idempotent start/stop tone generator. The streamer
// runs for the life of the speaker; Start and Stop only flip its
// paused state.
type Buzzer struct {
	ctrl *beep.Ctrl
}

// NewBuzzer initialises the speaker and parks a paused square wave on
// it.
func NewBuzzer() (*Buzzer, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}

	ctrl := &beep.Ctrl{Streamer: squareWave(), Paused: true}
	speaker.Play(ctrl)

	return &Buzzer{ctrl: ctrl}, nil
}

// Start implements cpu.Sound.
func (b *Buzzer) Start() {
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
}

// Stop implements cpu.Sound.
func (b *Buzzer) Stop() {
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
}

func squareWave() beep.Streamer {
	phaseInc := toneHz / float64(sampleRate)
	phase := 0.0

	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			s := volume
			if phase > 0.5 {
				s = -volume
			}
			samples[i][0] = s
			samples[i][1] = s

			phase += phaseInc
			if phase >= 1 {
				phase -= 1
			}
		}
		return len(samples), true
	})
}
