package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/race"
	"github.com/mcdev12/racetrack/go/internal/sessions"
	"github.com/mcdev12/racetrack/go/internal/snapshot"
	"github.com/mcdev12/racetrack/go/internal/timing"
)

// Scheduler is notified after every broadcast so state can be persisted.
type Scheduler interface {
	Schedule()
}

// Engine owns the session store and the race machine. Every command,
// notification and simulated tick runs under one mutex, and broadcasts are
// published while it is held so delivery order equals mutation order.
type Engine struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	store     *sessions.Store
	laps      *timing.Engine
	race      *race.Machine
	publisher events.Publisher
	saver     Scheduler

	ctx          context.Context
	cancel       context.CancelFunc
	countdown    *race.Countdown
	generation   uint64
	tickInterval time.Duration
}

// New creates an engine around store. Publishing must not block.
func New(clock clockwork.Clock, store *sessions.Store, publisher events.Publisher) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.Fanout{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		clock:        clock,
		store:        store,
		laps:         timing.NewEngine(store),
		race:         race.NewMachine(),
		publisher:    publisher,
		ctx:          ctx,
		cancel:       cancel,
		tickInterval: race.TickInterval,
	}
}

// SetSaver installs the persistence hook. Call before serving traffic.
func (e *Engine) SetSaver(s Scheduler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saver = s
}

// Close stops the simulated countdown.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopCountdownLocked("shutdown")
	e.mu.Unlock()
	e.cancel()
}

// Snapshot captures the persisted part of the engine state.
func (e *Engine) Snapshot() *snapshot.Document {
	e.mu.Lock()
	defer e.mu.Unlock()

	return &snapshot.Document{
		Version:  snapshot.CurrentVersion,
		SavedAt:  models.NewInstant(e.clock.Now()),
		Sessions: e.store.List(),
		Race:     e.race.Snapshot(),
	}
}

// Restore replaces the in-memory state with a loaded document. It does not
// broadcast; call Resume afterwards to reconcile the race timer.
func (e *Engine) Restore(doc *snapshot.Document) {
	if doc == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Replace(doc.Sessions)
	e.race.Restore(doc.Race)

	log.Info().
		Int("sessions", len(doc.Sessions)).
		Bool("race_state", doc.Race != nil).
		Time("saved_at", doc.SavedAt.Time).
		Msg("restored snapshot")
}

// Resume recomputes the remaining race time from the stored deadline. A
// race with time left is driven by the simulated countdown until a live
// tick takes over.
func (e *Engine) Resume() race.ResumeOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	remaining, outcome := e.race.Resume(now)

	switch outcome {
	case race.ResumeExpired:
		log.Info().Msg("race deadline passed while offline, marking inactive")
		e.publishCurrentLocked(now)
	case race.ResumeRunning:
		log.Info().Dur("remaining", remaining).Msg("resuming race countdown")
		e.publishCurrentLocked(now)
		e.startCountdownLocked()
	}
	return outcome
}

// CountdownRunning reports whether the simulated tick source is active.
func (e *Engine) CountdownRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countdown != nil
}

func (e *Engine) broadcastLocked(typ events.Type, sessionID models.SessionID, payload any) {
	ev, err := events.New(typ, sessionID, e.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(typ)).Msg("failed to build event")
		return
	}
	e.publisher.Publish(ev)

	if e.saver != nil {
		e.saver.Schedule()
	}
}

func (e *Engine) broadcastSessionsLocked() {
	e.broadcastLocked(events.TypeSessions, 0, e.store.List())
}

// publishTickLocked is the single path for live and simulated ticks.
func (e *Engine) publishTickLocked(tick models.RaceTick) {
	e.broadcastLocked(events.TypeTimerUpdate, tick.SessionID, tick)
}

func (e *Engine) publishCurrentLocked(now time.Time) {
	if st := e.race.Current(now); st != nil {
		e.publishTickLocked(race.Tick(*st))
	}
}

func (e *Engine) startCountdownLocked() {
	e.stopCountdownLocked("superseded")
	e.generation++
	e.countdown = race.StartCountdown(e.ctx, e.clock, e.generation, e.tickInterval, e.onSimulatedTick)
}

func (e *Engine) stopCountdownLocked(reason string) {
	if e.countdown == nil {
		return
	}
	e.countdown.Stop()
	log.Info().
		Uint64("generation", e.countdown.Generation).
		Str("reason", reason).
		Msg("simulated countdown stopped")
	e.countdown = nil
}

func (e *Engine) onSimulatedTick(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.countdown == nil || e.countdown.Generation != generation {
		return false
	}

	st, running := e.race.Advance(e.clock.Now())
	e.publishTickLocked(race.Tick(st))

	if !running {
		e.countdown = nil
		log.Info().Str("session_id", st.SessionID.String()).Msg("race time expired")
		e.broadcastLocked(events.TypeRaceCompleted, st.SessionID, events.RaceLifecyclePayload{SessionID: st.SessionID})
	}
	return running
}
