package state

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypistDebounce(t *testing.T) {
	var starts, stops int32

	ty := NewTypist(50*time.Millisecond,
		func() { atomic.AddInt32(&starts, 1) },
		func() { atomic.AddInt32(&stops, 1) },
	)

	// A burst of keystrokes: start per keystroke, but the idle timer is
	// replaced, never stacked, so exactly one stop fires.
	for i := 0; i < 5; i++ {
		ty.Keystroke()
		time.Sleep(10 * time.Millisecond)
	}

	assert.EqualValues(t, 5, atomic.LoadInt32(&starts))
	assert.EqualValues(t, 0, atomic.LoadInt32(&stops))

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))

	// Idle expiry with no active session emits nothing more.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))
}

func TestTypistStopFlushes(t *testing.T) {
	var stops int32

	ty := NewTypist(time.Minute, func() {}, func() { atomic.AddInt32(&stops, 1) })

	ty.Keystroke()
	ty.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops), "teardown must emit the pending stop")

	// Stop without an active session is a no-op.
	ty.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))

	// The long timer was cancelled; nothing fires later.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))
}
