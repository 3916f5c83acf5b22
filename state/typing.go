package state

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke the typing-stop
// signal fires.
const DefaultTypingIdle = time.Second

// Typist drives the local typing signal for one conversation view. Every
// keystroke emits typing-start and re-arms a single idle timer that emits
// typing-stop; a new keystroke replaces the pending timer instead of
// stacking another one.
type Typist struct {
	sync.Mutex

	idle  time.Duration
	start func()
	stop  func()

	timer  *time.Timer
	active bool
}

// NewTypist creates a Typist with the given idle delay (DefaultTypingIdle
// when zero). start and stop are invoked without the lock held.
func NewTypist(idle time.Duration, start, stop func()) *Typist {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typist{
		idle:  idle,
		start: start,
		stop:  stop,
	}
}

// Keystroke records typing activity: typing-start is emitted every time,
// the idle timer is replaced, never stacked.
func (t *Typist) Keystroke() {
	t.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
	t.active = true
	t.Unlock()

	t.start()
}

func (t *Typist) expire() {
	t.Lock()
	if !t.active {
		t.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.Unlock()

	t.stop()
}

// Stop cancels the pending timer and, if a typing session was active,
// emits the stop signal immediately. Called on view teardown.
func (t *Typist) Stop() {
	t.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	wasActive := t.active
	t.active = false
	t.Unlock()

	if wasActive {
		t.stop()
	}
}
