package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

// glog's flush daemon runs for the process lifetime.
var ignoreGlog = goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon")

// A burst of schedules within the debounce window coalesces into exactly
// one execution.
func TestScheduleCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s := NewScheduler(ctx)
	s.Register("conversations", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	for i := 0; i < 5; i++ {
		s.Schedule("conversations", 500*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(700 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))

	cancel()
	s.Stop()
}

// While a refresh is in flight, further schedules are dropped, not queued.
func TestScheduleSkipsWhileInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	block := make(chan struct{})
	s := NewScheduler(ctx)
	s.Register("conversations", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-block
		return nil
	})

	s.Schedule("conversations", 0)
	time.Sleep(50 * time.Millisecond) // let it enter flight

	s.Schedule("conversations", 0)
	s.Schedule("conversations", 0)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))

	close(block)
	time.Sleep(50 * time.Millisecond)

	// Back to idle: the next schedule runs again.
	s.Schedule("conversations", 0)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&runs))

	cancel()
	s.Stop()
}

// Task failures are contained: logged, in-flight cleared, next cycle runs.
func TestTaskErrorDoesNotWedgeKey(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s := NewScheduler(ctx)
	s.Register("conversations", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return assert.AnError
	})

	s.Schedule("conversations", 0)
	time.Sleep(50 * time.Millisecond)
	s.Schedule("conversations", 0)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&runs))

	cancel()
	s.Stop()
}

func TestUnknownKeyIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(ctx)
	s.Schedule("nope", 0)
	time.Sleep(20 * time.Millisecond)

	cancel()
	s.Stop()
}

// Independent keys do not interfere.
func TestKeysIndependent(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b int32
	block := make(chan struct{})
	s := NewScheduler(ctx)
	s.Register("a", func(context.Context) error {
		atomic.AddInt32(&a, 1)
		<-block
		return nil
	})
	s.Register("b", func(context.Context) error {
		atomic.AddInt32(&b, 1)
		return nil
	})

	s.Schedule("a", 0)
	time.Sleep(50 * time.Millisecond)
	s.Schedule("b", 0)
	time.Sleep(50 * time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt32(&a))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b))

	close(block)
	cancel()
	s.Stop()
}

func TestEveryRoutesThroughSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s := NewScheduler(ctx)
	s.Register("conversations", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	s.Every(ctx, "conversations", 50*time.Millisecond)
	time.Sleep(180 * time.Millisecond)

	cancel()
	s.Stop()

	got := atomic.LoadInt32(&runs)
	assert.GreaterOrEqual(t, got, int32(2))
	assert.LessOrEqual(t, got, int32(4))
}
