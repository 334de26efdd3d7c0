package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// timers owns every pending timer of one session. All methods must be called
// with the session lock held; callbacks acquire it themselves, so a callback
// never overlaps another turn on the same state.
type timers struct {
	clock  clockwork.Clock
	locker sync.Locker

	seq     int
	epoch   int
	pending map[int]clockwork.Timer
	closed  bool
}

func newTimers(clock clockwork.Clock, locker sync.Locker) *timers {
	return &timers{
		clock:   clock,
		locker:  locker,
		pending: make(map[int]clockwork.Timer),
	}
}

// after runs fn once after d unless the timer is stopped first. The returned
// id is 0 when the timers are closed.
func (t *timers) after(d time.Duration, fn func()) int {
	if t.closed {
		return 0
	}

	t.seq++
	id := t.seq
	t.pending[id] = t.clock.AfterFunc(d, func() {
		t.locker.Lock()
		defer t.locker.Unlock()

		// Stop lost the race against a firing timer.
		if _, ok := t.pending[id]; !ok {
			return
		}
		delete(t.pending, id)

		fn()
	})

	return id
}

// cancel stops the timer with the given id if it is still pending.
func (t *timers) cancel(id int) {
	if tm, ok := t.pending[id]; ok {
		tm.Stop()
		delete(t.pending, id)
	}
}

// every runs fn each d until fn returns false or the timers are stopped.
func (t *timers) every(d time.Duration, fn func() bool) {
	epoch := t.epoch

	var tick func()
	tick = func() {
		if fn() && t.epoch == epoch {
			t.after(d, tick)
		}
	}

	t.after(d, tick)
}

// stop cancels every pending timer, including repeating ones.
func (t *timers) stop() {
	for id, tm := range t.pending {
		tm.Stop()
		delete(t.pending, id)
	}
	t.epoch++
}

// close stops everything and refuses new timers.
func (t *timers) close() {
	t.stop()
	t.closed = true
}

func (t *timers) len() int {
	return len(t.pending)
}
