package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/hearth/internal/logging"
)

// Scheduler runs registered callbacks at their interval, on a single
// goroutine ticking at Settings.Resolution.
type Scheduler struct {
	Settings *Settings `inject:""`

	mu     sync.Mutex
	timers map[uint64]*scheduled
	nextID uint64
	cancel context.CancelFunc
	done   chan struct{}
	logger *logging.Logger
}

type scheduled struct {
	name     string
	interval time.Duration
	next     time.Time
	fn       func(now time.Time)
}

func newScheduler() (*Scheduler, error) {
	return &Scheduler{
		timers: make(map[uint64]*scheduled),
		logger: logging.GetLogger("extensions.timer.scheduler"),
	}, nil
}

// Schedule runs fn every interval until the returned cancel is called.
// Callbacks run on the scheduler goroutine and must not block.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn func(now time.Time)) (cancel func(), err error) {
	if interval <= 0 {
		return nil, fmt.Errorf("timer %s: interval must be positive", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("timer %s: callback is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.timers[id] = &scheduled{name: name, interval: interval, next: time.Now().Add(interval), fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.timers, id)
			s.mu.Unlock()
		})
	}, nil
}

// Len returns the number of scheduled timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// PostInit starts ticking.
func (s *Scheduler) PostInit(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, s.Settings.Resolution, done)
	s.logger.Debug("Scheduler started (resolution %s)", s.Settings.Resolution)
	return nil
}

func (s *Scheduler) run(ctx context.Context, resolution time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, t := range s.due(now) {
				s.fire(t, now)
			}
		}
	}
}

// due returns the timers to fire at now and advances their next deadline.
func (s *Scheduler) due(now time.Time) []*scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*scheduled
	for _, t := range s.timers {
		if now.Before(t.next) {
			continue
		}
		out = append(out, t)
		t.next = t.next.Add(t.interval)
		if t.next.Before(now) {
			t.next = now.Add(t.interval)
		}
	}
	return out
}

func (s *Scheduler) fire(t *scheduled, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Timer %s panicked: %v", t.name, r)
		}
	}()
	t.fn(now)
}

// PreDestroy stops ticking and waits for the scheduler goroutine.
func (s *Scheduler) PreDestroy(context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Debug("Scheduler stopped")
	return nil
}
