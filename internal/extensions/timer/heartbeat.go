package timer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/logging"
)

// Beat is published on the event bus on every heartbeat.
type Beat struct {
	Module string
	Count  uint64
	At     time.Time
}

// Heartbeat schedules a periodic beat while it runs.
type Heartbeat struct {
	Scheduler *Scheduler    `inject:""`
	Settings  *Settings     `inject:""`
	Bus       *eventbus.Bus `inject:"optional"`

	count  atomic.Uint64
	cancel func()
	logger *logging.Logger
}

func newHeartbeat() (*Heartbeat, error) {
	return &Heartbeat{logger: logging.GetLogger("extensions.timer.heartbeat")}, nil
}

// PostInit schedules the beat unless the interval is zero.
func (h *Heartbeat) PostInit(context.Context) error {
	if h.Settings.Heartbeat == 0 {
		h.logger.Debug("Heartbeat disabled for module %s", h.Settings.Module)
		return nil
	}
	cancel, err := h.Scheduler.Schedule("heartbeat", h.Settings.Heartbeat, h.beat)
	if err != nil {
		return err
	}
	h.cancel = cancel
	return nil
}

func (h *Heartbeat) beat(now time.Time) {
	n := h.count.Add(1)
	h.logger.Debug("Heartbeat %d from module %s", n, h.Settings.Module)
	if h.Bus != nil {
		h.Bus.Publish(context.Background(), Beat{Module: h.Settings.Module, Count: n, At: now})
	}
}

// PreDestroy cancels the beat.
func (h *Heartbeat) PreDestroy(context.Context) error {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	return nil
}

// Count returns the number of beats so far.
func (h *Heartbeat) Count() uint64 {
	return h.count.Load()
}
