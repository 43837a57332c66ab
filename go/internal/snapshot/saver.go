package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the coalescing window for snapshot writes.
const DefaultDebounce = 200 * time.Millisecond

// Saver coalesces bursts of Schedule calls into at most one write per
// window. Writes happen on the timer goroutine, never on the caller's.
type Saver struct {
	clock    clockwork.Clock
	store    Store
	source   func() *Document
	debounce time.Duration

	mu      sync.Mutex
	timer   clockwork.Timer
	pending bool
	writeMu sync.Mutex
}

// NewSaver builds a saver. source is called at write time so the latest
// state is always what gets persisted.
func NewSaver(clock clockwork.Clock, store Store, source func() *Document, debounce time.Duration) *Saver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Saver{
		clock:    clock,
		store:    store,
		source:   source,
		debounce: debounce,
	}
}

// Schedule arms the timer unless a write is already pending. It never
// blocks on I/O, so it is safe to call while holding the engine lock.
func (s *Saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return
	}
	s.pending = true
	s.timer = s.clock.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.pending = false
		s.timer = nil
		s.mu.Unlock()

		s.write(context.Background())
	})
}

// Flush cancels any pending timer and writes immediately.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	s.mu.Unlock()

	return s.write(ctx)
}

func (s *Saver) write(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := s.source()
	if doc == nil {
		return nil
	}
	doc.Version = CurrentVersion

	if err := s.store.Save(ctx, doc); err != nil {
		log.Error().Err(err).Msg("failed to persist snapshot")
		return err
	}
	log.Debug().Int("sessions", len(doc.Sessions)).Msg("snapshot persisted")
	return nil
}
