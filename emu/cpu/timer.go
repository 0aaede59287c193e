package cpu

import (
	"sync"
	"sync/atomic"
	"time"
)

// timerPeriod is a decent estimation of 60Hz.
const timerPeriod = 16 * time.Millisecond

// timer is the independent clock that decrements the delay and sound
// counters at 60Hz and edge-triggers the buzzer. The counters are
// 8-bit values held in 32-bit atomics because sync/atomic has no
// 8-bit flavour.
//
// The counters are shared with the execution engine. Decrements go
// through compare-and-swap so a racing register store is never lost:
// the losing decrement is skipped, not reapplied, and the next tick
// catches up.
type timer struct {
	dt   atomic.Uint32
	st   atomic.Uint32
	halt atomic.Bool
	done chan struct{}

	// mu guards sound. The clock loop only ever tries the lock so a
	// busy driver costs one tick, never the cadence.
	mu    sync.Mutex
	sound Sound
}

func newTimer() *timer {
	t := &timer{done: make(chan struct{})}
	go t.run()
	return t
}

func (t *timer) setSound(s Sound) {
	t.mu.Lock()
	t.sound = s
	t.mu.Unlock()
}

func (t *timer) run() {
	defer close(t.done)

	tick := time.NewTicker(timerPeriod)
	defer tick.Stop()

	buzzing := false

	for range tick.C {
		if t.halt.Load() {
			return
		}

		// only decrement if the value didn't change out from under
		// us. if it did, the next tick catches up. same for the
		// sound counter below.
		if v := t.dt.Load(); v > 0 {
			t.dt.CompareAndSwap(v, v-1)
		}

		v := t.st.Load()
		if v > 0 && t.st.CompareAndSwap(v, v-1) {
			v--
		}

		if v <= 1 && buzzing {
			if t.mu.TryLock() {
				if t.sound != nil {
					t.sound.Stop()
				}
				buzzing = false
				t.mu.Unlock()
			}
		} else if v > 1 && !buzzing {
			if t.mu.TryLock() {
				if t.sound != nil {
					t.sound.Start()
				}
				buzzing = true
				t.mu.Unlock()
			}
		}
	}
}

// stop halts the clock and waits for the loop to exit. No timer tick
// runs concurrently with or after stop returning. Safe to call more
// than once.
func (t *timer) stop() {
	t.halt.Store(true)
	<-t.done
}
