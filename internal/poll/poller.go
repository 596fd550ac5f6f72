package poll

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStop is returned by a cycle function to tear the poller down from
// inside a cycle, e.g. after an unrecoverable refresh failure. Calling
// Stop from within a cycle would deadlock; returning ErrStop is the
// in-cycle equivalent.
var ErrStop = errors.New("stop polling")

// CycleFunc runs one poll cycle. Any error other than ErrStop is the
// cycle's own business; the poller keeps ticking.
type CycleFunc func(ctx context.Context) error

// Poller drives a cycle function on a fixed period: one immediate cycle on
// Start, then one per tick. Cycles are strictly sequential; a tick that
// fires while a cycle is still in flight is dropped, not queued. Stop is
// synchronous: no cycle runs after it returns.
type Poller struct {
	interval time.Duration
	cycle    CycleFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, cycle CycleFunc) *Poller {
	return &Poller{interval: interval, cycle: cycle}
}

// Start begins polling. A prior timer, if any, is cancelled first so there
// is never more than one active timer per poller.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(runCtx, done)
}

// Stop cancels the timer and waits for any in-flight cycle to finish.
// After Stop returns, no further cycle fires. Must not be called from
// inside a cycle; return ErrStop there instead.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := p.cycle(ctx); errors.Is(err, ErrStop) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.cycle(ctx); errors.Is(err, ErrStop) {
				return
			}
			// Drop the tick that may have fired while the cycle ran so a
			// slow cycle skips its tick rather than queueing it.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}
