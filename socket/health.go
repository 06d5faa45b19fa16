package socket

import (
	"sync"
	"sync/atomic"
	"time"
)

// healthChecker runs probe on a fixed interval until stopped. The probe decides
// for itself whether there is anything to do.
type healthChecker struct {
	interval time.Duration
	probe    func()

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
	stops     atomic.Int32
}

func newHealthChecker(interval time.Duration, probe func()) *healthChecker {
	return &healthChecker{
		interval: interval,
		probe:    probe,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	h.startOnce.Do(func() {
		if h.interval <= 0 {
			close(h.done)
			return
		}
		go h.loop()
	})
}

func (h *healthChecker) loop() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.probe()
		}
	}
}

// stop cancels the timer. Only the first call has an effect.
func (h *healthChecker) stop() {
	h.stopOnce.Do(func() {
		h.stops.Add(1)
		close(h.stopCh)
	})
}
