package race

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is the cadence of simulated ticks.
const TickInterval = time.Second

// Countdown is the simulated tick source used when no live race-control
// client is driving the timer, e.g. after a restart mid-race. Each countdown
// carries a generation so the consumer can discard ticks from a countdown
// that has already been superseded.
type Countdown struct {
	Generation uint64

	clock    clockwork.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// StartCountdown fires onTick every interval until onTick returns false,
// Stop is called, or ctx is cancelled.
func StartCountdown(ctx context.Context, clock clockwork.Clock, generation uint64, interval time.Duration, onTick func(generation uint64) bool) *Countdown {
	c := &Countdown{
		Generation: generation,
		clock:      clock,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.Chan():
				if !onTick(generation) {
					log.Debug().Uint64("generation", generation).Msg("countdown finished")
					return
				}
			}
		}
	}()

	log.Info().Uint64("generation", generation).Dur("interval", interval).Msg("simulated countdown started")
	return c
}

// Stop ends the countdown. It is safe to call more than once and from
// inside onTick.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Done is closed when the countdown goroutine exits.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
