// Package refresh provides debounced, coalesced refresh operations keyed by
// purpose. Timers, focus events and push-driven triggers all funnel through
// one Scheduler so that at most one refresh per key is ever in flight.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimirror_refresh_executed_total",
		Help: "Refresh tasks executed, by key.",
	}, []string{"key"})
	skipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimirror_refresh_skipped_total",
		Help: "Refresh requests dropped because one was in flight, by key.",
	}, []string{"key"})
)

// Task performs the underlying refresh operation. Errors are logged and
// dropped here; a task that must escalate (forced logout) does that itself.
type Task func(ctx context.Context) error

type entry struct {
	timer    *time.Timer
	inflight bool
}

// Scheduler coalesces refresh requests per key: a call while in flight is a
// no-op, a call while a timer is pending replaces the timer. Exactly one
// execution per fired timer.
type Scheduler struct {
	sync.Mutex

	ctx     context.Context
	tasks   map[string]Task
	entries map[string]*entry
	wg      sync.WaitGroup
	stopped bool
}

// NewScheduler creates a Scheduler whose tasks run under ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		tasks:   make(map[string]Task),
		entries: make(map[string]*entry),
	}
}

// Register binds a task to a key. Must be called before the first Schedule
// for that key.
func (s *Scheduler) Register(key string, task Task) {
	s.Lock()
	s.tasks[key] = task
	s.entries[key] = &entry{}
	s.Unlock()
}

// Schedule requests a refresh for key after delay. If a refresh for the key
// is already in flight the request is dropped, not queued. A pending timer
// for the key is replaced, so bursts collapse into a single execution.
func (s *Scheduler) Schedule(key string, delay time.Duration) {
	s.Lock()
	defer s.Unlock()

	if s.stopped {
		return
	}
	e, ok := s.entries[key]
	if !ok {
		glog.Errorf("Schedule(): unknown refresh key `%s`", key)
		return
	}
	if e.inflight {
		glog.V(5).Infof("Schedule(): refresh `%s` is in flight, skipped", key)
		skipped.WithLabelValues(key).Inc()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, func() { s.fire(key) })
}

func (s *Scheduler) fire(key string) {
	s.Lock()
	e := s.entries[key]
	task := s.tasks[key]
	if s.stopped || e == nil || task == nil || e.inflight {
		s.Unlock()
		return
	}
	e.inflight = true
	e.timer = nil
	s.wg.Add(1)
	s.Unlock()

	go func() {
		defer s.wg.Done()

		if err := task(s.ctx); err != nil {
			// State is left unchanged by a failed pull; the next
			// scheduled cycle retries.
			glog.Errorf("refresh `%s` error: %v", key, err)
		} else {
			glog.V(5).Infof("refresh `%s` done", key)
		}
		executed.WithLabelValues(key).Inc()

		s.Lock()
		e.inflight = false
		s.Unlock()
	}()
}

// Every schedules the key on a fixed cadence until ctx is done. Cadences
// route through Schedule, so they coalesce with every other trigger.
func (s *Scheduler) Every(ctx context.Context, key string, interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Schedule(key, 0)
			}
		}
	}()
}

// Stop cancels all pending timers and waits for in-flight tasks and
// cadence loops to finish. The owning context should be cancelled first so
// Every loops unblock.
func (s *Scheduler) Stop() {
	s.Lock()
	s.stopped = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.Unlock()

	s.wg.Wait()
}
