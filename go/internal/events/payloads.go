package events

import (
	"github.com/mcdev12/racetrack/go/internal/models"
)

// RaceModeChangePayload is the payload for a race-mode-change event
type RaceModeChangePayload struct {
	SessionID models.SessionID `json:"sessionId"`
	Mode      models.RaceMode  `json:"mode"`
}

// RaceStartedPayload is the payload for a race-started event
type RaceStartedPayload struct {
	SessionID models.SessionID `json:"sessionId"`
	StartTime models.Instant   `json:"startTime"`
	Duration  int              `json:"duration,omitempty"`
}

// RaceLifecyclePayload is the payload for race-stopped and race-completed
type RaceLifecyclePayload struct {
	SessionID models.SessionID `json:"sessionId"`
}

// RaceStatePayload answers get-race-state for one session
type RaceStatePayload struct {
	SessionID models.SessionID `json:"sessionId"`
	Active    bool             `json:"active"`
	Mode      models.RaceMode  `json:"mode"`
	StartTime *models.Instant  `json:"startTime"`
}
