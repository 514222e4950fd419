package quiz

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// roomTimer is the single pending task slot of a room. gen increases on every
// cancel so a fire that already left the channel but has not taken the room
// lock yet is recognised as stale.
type roomTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
	armed bool
	gen   uint64
}

// schedule cancels any pending task and runs fn under the room lock after d.
// Callers hold the lock.
func (r *Room) schedule(d time.Duration, fn func()) {
	r.cancelTimer()

	gen := r.timer.gen
	stop := make(chan struct{})

	var fire <-chan time.Time
	var t clockwork.Timer
	if d > 0 {
		t = r.deps.Clock.NewTimer(d)
		fire = t.Chan()
	} else {
		now := make(chan time.Time, 1)
		now <- r.deps.Clock.Now()
		fire = now
	}
	r.timer.timer = t
	r.timer.stop = stop
	r.timer.armed = true

	go func() {
		select {
		case <-fire:
		case <-stop:
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.timer.gen != gen {
			log.Debug().Str("room_code", r.code).Msg("discarding stale timer fire")
			return
		}
		r.timer.timer = nil
		r.timer.stop = nil
		r.timer.armed = false
		fn()
	}()

	log.Debug().
		Str("room_code", r.code).
		Dur("duration", d).
		Msg("scheduled room timer")
}

// cancelTimer stops the pending task, if any. Callers hold the lock.
func (r *Room) cancelTimer() {
	if !r.timer.armed {
		return
	}
	if r.timer.timer != nil {
		stopAndDrainTimer(r.timer.timer)
	}
	close(r.timer.stop)
	r.timer.timer = nil
	r.timer.stop = nil
	r.timer.armed = false
	r.timer.gen++

	log.Debug().Str("room_code", r.code).Msg("cancelled room timer")
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
