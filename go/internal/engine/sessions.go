package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/sessions"
	"github.com/mcdev12/racetrack/go/internal/timing"
)

// CreateSession adds a session and broadcasts the new list.
func (e *Engine) CreateSession(name string, id *models.SessionID) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.store.Create(name, id, e.clock.Now())
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", session.ID.String()).Str("name", session.Name).Msg("session created")
	e.broadcastSessionsLocked()
	return session, nil
}

// DeleteSession removes a session and its drivers. The race state is left
// alone even if it refers to the deleted session.
func (e *Engine) DeleteSession(id models.SessionID) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.store.Delete(id)
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", id.String()).Msg("session deleted")
	e.broadcastSessionsLocked()
	return session, nil
}

// ListSessions returns a deep copy of every session.
func (e *Engine) ListSessions() []models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

// WithSessions calls fn with the current list while holding the engine
// lock, so a reply enqueued by fn cannot be overtaken by an older broadcast.
func (e *Engine) WithSessions(fn func([]models.Session)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.store.List())
}

// Session returns one session.
func (e *Engine) Session(id models.SessionID) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.store.Get(id)
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	return session, nil
}

// Leaderboard ranks a session's drivers by fastest lap.
func (e *Engine) Leaderboard(id models.SessionID) ([]timing.Standing, error) {
	session, err := e.Session(id)
	if err != nil {
		return nil, err
	}
	return timing.Leaderboard(*session), nil
}

func (e *Engine) AddDriver(sessionID models.SessionID, name string, carNumber *int) (*models.Driver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	driver, err := e.store.AddDriver(sessionID, name, carNumber)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("driver", driver.Name).
		Int("car_number", driver.CarNumber).
		Msg("driver added")
	e.broadcastSessionsLocked()
	return driver, nil
}

func (e *Engine) EditDriver(sessionID models.SessionID, oldName, newName string, carNumber *int) (*models.Driver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	driver, err := e.store.EditDriver(sessionID, oldName, newName, carNumber)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("old_name", oldName).
		Str("driver", driver.Name).
		Int("car_number", driver.CarNumber).
		Msg("driver edited")
	e.broadcastSessionsLocked()
	return driver, nil
}

func (e *Engine) RemoveDriver(sessionID models.SessionID, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.RemoveDriver(sessionID, name); err != nil {
		return err
	}

	log.Info().Str("session_id", sessionID.String()).Str("driver", name).Msg("driver removed")
	e.broadcastSessionsLocked()
	return nil
}

// RecordCrossing is best-effort telemetry: unknown sessions or cars are
// logged and dropped.
func (e *Engine) RecordCrossing(sessionID models.SessionID, carNumber int, clientAt *models.Instant) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record, err := e.laps.RecordCrossing(sessionID, carNumber, clientAt, e.clock.Now())
	if err != nil {
		log.Debug().
			Err(err).
			Str("session_id", sessionID.String()).
			Int("car_number", carNumber).
			Msg("dropping lap crossing")
		return
	}

	e.broadcastSessionsLocked()
	e.broadcastLocked(events.TypeLapRecorded, sessionID, record)
}
