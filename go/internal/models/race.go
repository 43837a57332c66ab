package models

import (
	"fmt"
	"strings"
)

// RaceMode defines the track flag state.
type RaceMode string

const (
	RaceModeSafe   RaceMode = "SAFE"
	RaceModeHazard RaceMode = "HAZARD"
	RaceModeDanger RaceMode = "DANGER"
	RaceModeFinish RaceMode = "FINISH"
)

// ParseRaceMode normalizes the lowercase values the race-control page sends.
func ParseRaceMode(s string) (RaceMode, error) {
	m := RaceMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case RaceModeSafe, RaceModeHazard, RaceModeDanger, RaceModeFinish:
		return m, nil
	}
	return "", fmt.Errorf("unknown race mode %q", s)
}

// RaceState is the last authoritative tick plus the derived deadline.
type RaceState struct {
	SessionID   SessionID `json:"sessionId"`
	SessionName string    `json:"sessionName,omitempty"`
	RaceActive  bool      `json:"raceActive"`
	RaceMode    RaceMode  `json:"raceMode"`
	TimeLeft    int       `json:"timeLeft"`
	EndDeadline *Instant  `json:"endDeadline,omitempty"`
	StartedAt   *Instant  `json:"startedAt,omitempty"`
	LastUpdated Instant   `json:"lastUpdated"`
}

// Clone returns a deep copy.
func (r RaceState) Clone() RaceState {
	out := r
	if r.EndDeadline != nil {
		v := *r.EndDeadline
		out.EndDeadline = &v
	}
	if r.StartedAt != nil {
		v := *r.StartedAt
		out.StartedAt = &v
	}
	return out
}

// RaceTick is one timer snapshot pushed by race control.
type RaceTick struct {
	SessionID   SessionID `json:"sessionId"`
	SessionName string    `json:"sessionName,omitempty"`
	TimeLeft    int       `json:"timeLeft"`
	RaceActive  bool      `json:"raceActive"`
	RaceMode    RaceMode  `json:"raceMode"`
}
