package race

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/racetrack/go/internal/models"
)

var (
	ErrNegativeTimeLeft = errors.New("timeLeft must not be negative")
	ErrInvalidMode      = errors.New("invalid race mode")
	ErrNotRacing        = errors.New("session is not racing")
)

// ResumeOutcome describes what Resume found in a restored state.
type ResumeOutcome int

const (
	// ResumeIdle means there was no active race to resume.
	ResumeIdle ResumeOutcome = iota
	// ResumeExpired means the deadline passed while the process was down.
	ResumeExpired
	// ResumeRunning means time is left and a countdown should be started.
	ResumeRunning
)

// Machine holds the singleton race state. Active/inactive and the race mode
// are independent dimensions. It is not safe for concurrent use.
type Machine struct {
	state *models.RaceState
}

// NewMachine creates a machine with no recorded tick.
func NewMachine() *Machine {
	return &Machine{}
}

// Restore installs a persisted state.
func (m *Machine) Restore(state *models.RaceState) {
	if state == nil {
		m.state = nil
		return
	}
	c := state.Clone()
	m.state = &c
}

// Snapshot returns the stored state verbatim, without recomputing time.
func (m *Machine) Snapshot() *models.RaceState {
	if m.state == nil {
		return nil
	}
	c := m.state.Clone()
	return &c
}

// Current returns the last tick with timeLeft re-derived from the deadline
// when a race is running, or nil when nothing was ever recorded.
func (m *Machine) Current(now time.Time) *models.RaceState {
	if m.state == nil {
		return nil
	}
	c := m.state.Clone()
	if c.RaceActive && c.EndDeadline != nil {
		c.TimeLeft = secondsUntil(c.EndDeadline.Time, now)
	}
	return &c
}

// ApplyTick stores a tick. When the race is active the absolute deadline is
// recomputed so time can always be derived from the wall clock.
func (m *Machine) ApplyTick(tick models.RaceTick, now time.Time) (models.RaceState, error) {
	mode, err := ValidateTick(tick)
	if err != nil {
		return models.RaceState{}, err
	}

	st := m.ensure(tick.SessionID)
	wasActive := st.RaceActive && st.SessionID == tick.SessionID

	if tick.SessionName != "" || st.SessionID != tick.SessionID {
		st.SessionName = tick.SessionName
	}
	st.SessionID = tick.SessionID
	st.RaceActive = tick.RaceActive
	st.RaceMode = mode
	st.TimeLeft = tick.TimeLeft
	st.LastUpdated = models.NewInstant(now)

	if tick.RaceActive {
		st.EndDeadline = models.InstantPtr(now.Add(time.Duration(tick.TimeLeft) * time.Second))
		if !wasActive || st.StartedAt == nil {
			st.StartedAt = models.InstantPtr(now)
		}
	} else {
		st.EndDeadline = nil
	}

	return st.Clone(), nil
}

// ValidateTick checks a tick without applying it and returns the
// normalized mode.
func ValidateTick(tick models.RaceTick) (models.RaceMode, error) {
	if tick.TimeLeft < 0 {
		return "", ErrNegativeTimeLeft
	}
	mode, err := models.ParseRaceMode(string(tick.RaceMode))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	return mode, nil
}

// ChangeMode sets the track-wide flag. The race keeps its session and
// countdown; sessionID only seeds the state when nothing was recorded yet.
func (m *Machine) ChangeMode(sessionID models.SessionID, mode models.RaceMode, now time.Time) (models.RaceState, error) {
	parsed, err := models.ParseRaceMode(string(mode))
	if err != nil {
		return models.RaceState{}, fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}

	st := m.ensure(sessionID)
	st.RaceMode = parsed
	st.LastUpdated = models.NewInstant(now)
	return st.Clone(), nil
}

// Start marks the race active. A positive duration also sets the deadline.
func (m *Machine) Start(sessionID models.SessionID, sessionName string, duration time.Duration, now time.Time) models.RaceState {
	st := m.ensure(sessionID)
	if sessionName != "" || st.SessionID != sessionID {
		st.SessionName = sessionName
	}
	st.SessionID = sessionID
	st.RaceActive = true
	st.StartedAt = models.InstantPtr(now)
	st.LastUpdated = models.NewInstant(now)
	if duration > 0 {
		st.TimeLeft = int(duration / time.Second)
		st.EndDeadline = models.InstantPtr(now.Add(duration))
	} else {
		st.EndDeadline = nil
	}
	return st.Clone()
}

// Stop halts the race and freezes the remaining time. A stop for a session
// other than the one racing is rejected.
func (m *Machine) Stop(sessionID models.SessionID, now time.Time) (models.RaceState, error) {
	st := m.ensure(sessionID)
	if err := m.checkRacing(sessionID); err != nil {
		return models.RaceState{}, err
	}
	if st.RaceActive && st.EndDeadline != nil {
		st.TimeLeft = secondsUntil(st.EndDeadline.Time, now)
	}
	m.rebind(sessionID)
	st.RaceActive = false
	st.EndDeadline = nil
	st.LastUpdated = models.NewInstant(now)
	return st.Clone(), nil
}

// Complete ends the race with no time left. Like Stop, it only applies to
// the session that is racing.
func (m *Machine) Complete(sessionID models.SessionID, now time.Time) (models.RaceState, error) {
	st := m.ensure(sessionID)
	if err := m.checkRacing(sessionID); err != nil {
		return models.RaceState{}, err
	}
	m.rebind(sessionID)
	m.expire(now)
	return st.Clone(), nil
}

// Resume inspects a restored state after a restart. An elapsed deadline
// transitions the race to inactive immediately.
func (m *Machine) Resume(now time.Time) (time.Duration, ResumeOutcome) {
	if m.state == nil || !m.state.RaceActive || m.state.EndDeadline == nil {
		return 0, ResumeIdle
	}

	remaining := m.state.EndDeadline.Sub(now)
	if remaining <= 0 {
		m.expire(now)
		return 0, ResumeExpired
	}

	m.state.TimeLeft = secondsUntil(m.state.EndDeadline.Time, now)
	m.state.LastUpdated = models.NewInstant(now)
	return remaining, ResumeRunning
}

// Advance re-derives timeLeft for a simulated tick. It reports false once
// the deadline has passed, after marking the race inactive.
func (m *Machine) Advance(now time.Time) (models.RaceState, bool) {
	if m.state == nil {
		return models.RaceState{}, false
	}
	if !m.state.RaceActive || m.state.EndDeadline == nil {
		return m.state.Clone(), false
	}

	if !m.state.EndDeadline.After(now) {
		m.expire(now)
		return m.state.Clone(), false
	}

	m.state.TimeLeft = secondsUntil(m.state.EndDeadline.Time, now)
	m.state.LastUpdated = models.NewInstant(now)
	return m.state.Clone(), true
}

// Tick converts a state into the payload shape clients consume.
func Tick(st models.RaceState) models.RaceTick {
	return models.RaceTick{
		SessionID:   st.SessionID,
		SessionName: st.SessionName,
		TimeLeft:    st.TimeLeft,
		RaceActive:  st.RaceActive,
		RaceMode:    st.RaceMode,
	}
}

func (m *Machine) expire(now time.Time) {
	m.state.RaceActive = false
	m.state.TimeLeft = 0
	m.state.EndDeadline = nil
	m.state.LastUpdated = models.NewInstant(now)
}

func (m *Machine) checkRacing(sessionID models.SessionID) error {
	if m.state.RaceActive && m.state.SessionID != sessionID {
		return fmt.Errorf("%w: race belongs to session %s", ErrNotRacing, m.state.SessionID)
	}
	return nil
}

// rebind points the state at sessionID, dropping a name that belonged to
// another session.
func (m *Machine) rebind(sessionID models.SessionID) {
	if m.state.SessionID != sessionID {
		m.state.SessionName = ""
	}
	m.state.SessionID = sessionID
}

func (m *Machine) ensure(sessionID models.SessionID) *models.RaceState {
	if m.state == nil {
		m.state = &models.RaceState{SessionID: sessionID, RaceMode: models.RaceModeSafe}
	}
	return m.state
}

// secondsUntil rounds up so a countdown shows 1 until it truly reaches 0.
func secondsUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
