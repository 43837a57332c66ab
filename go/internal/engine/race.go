package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/race"
)

// PushTimerTick applies a live tick from race control. Valid live ticks
// always take precedence over the simulated countdown; a malformed tick is
// dropped without side effects.
func (e *Engine) PushTimerTick(tick models.RaceTick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := race.ValidateTick(tick); err != nil {
		log.Warn().Err(err).Str("session_id", tick.SessionID.String()).Msg("dropping timer tick")
		return
	}
	e.stopCountdownLocked("live tick")

	if tick.SessionName == "" {
		if s, ok := e.store.Get(tick.SessionID); ok {
			tick.SessionName = s.Name
		}
	}

	st, err := e.race.ApplyTick(tick, e.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("session_id", tick.SessionID.String()).Msg("dropping timer tick")
		return
	}

	tick.SessionName = st.SessionName
	tick.RaceMode = st.RaceMode
	e.publishTickLocked(tick)
}

// ChangeMode updates the track-wide flag. It does not affect the countdown
// or which session is racing.
func (e *Engine) ChangeMode(sessionID models.SessionID, mode models.RaceMode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.race.ChangeMode(sessionID, mode, e.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("dropping race mode change")
		return
	}

	log.Info().
		Str("session_id", st.SessionID.String()).
		Str("requested_by_session", sessionID.String()).
		Str("mode", string(st.RaceMode)).
		Msg("race mode changed")
	e.broadcastLocked(events.TypeRaceModeChange, st.SessionID, events.RaceModeChangePayload{
		SessionID: st.SessionID,
		Mode:      st.RaceMode,
	})
}

// StartRace marks the race active. With a positive duration the server
// drives the countdown until a live tick arrives.
func (e *Engine) StartRace(sessionID models.SessionID, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopCountdownLocked("race started")

	var name string
	if s, ok := e.store.Get(sessionID); ok {
		name = s.Name
	}

	now := e.clock.Now()
	st := e.race.Start(sessionID, name, duration, now)

	log.Info().Str("session_id", sessionID.String()).Dur("duration", duration).Msg("race started")
	e.broadcastLocked(events.TypeRaceStarted, sessionID, events.RaceStartedPayload{
		SessionID: sessionID,
		StartTime: *st.StartedAt,
		Duration:  int(duration / time.Second),
	})
	e.publishTickLocked(race.Tick(st))

	if duration > 0 {
		e.startCountdownLocked()
	}
}

// StopRace halts the race and freezes the remaining time. A stop naming a
// session other than the one racing is dropped.
func (e *Engine) StopRace(sessionID models.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.race.Stop(sessionID, e.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("dropping race stop")
		return
	}
	e.stopCountdownLocked("race stopped")

	log.Info().Str("session_id", sessionID.String()).Int("time_left", st.TimeLeft).Msg("race stopped")
	e.broadcastLocked(events.TypeRaceStopped, sessionID, events.RaceLifecyclePayload{SessionID: sessionID})
	e.publishTickLocked(race.Tick(st))
}

// CompleteRace ends the race with no time left. Like StopRace it only
// applies to the session that is racing.
func (e *Engine) CompleteRace(sessionID models.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.race.Complete(sessionID, e.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("dropping race completion")
		return
	}
	e.stopCountdownLocked("race completed")

	log.Info().Str("session_id", sessionID.String()).Msg("race completed")
	e.broadcastLocked(events.TypeRaceCompleted, sessionID, events.RaceLifecyclePayload{SessionID: sessionID})
	e.publishTickLocked(race.Tick(st))
}

// CurrentRaceData returns the last tick with a fresh timeLeft, or nil when
// no tick was ever recorded.
func (e *Engine) CurrentRaceData() *models.RaceTick {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.race.Current(e.clock.Now())
	if st == nil {
		return nil
	}
	tick := race.Tick(*st)
	return &tick
}

// RaceState returns the full race state, or nil.
func (e *Engine) RaceState() *models.RaceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.race.Current(e.clock.Now())
}

// RaceStateFor answers get-race-state. The flag is track-wide; activity and
// start time only apply when the race belongs to sessionID.
func (e *Engine) RaceStateFor(sessionID models.SessionID) events.RaceStatePayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := events.RaceStatePayload{SessionID: sessionID, Mode: models.RaceModeSafe}
	st := e.race.Current(e.clock.Now())
	if st == nil {
		return out
	}

	out.Mode = st.RaceMode
	if st.SessionID == sessionID {
		out.Active = st.RaceActive
		out.StartTime = st.StartedAt
	}
	return out
}
