package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// Event is the envelope for every server-pushed frame.
type Event struct {
	ID        string          `json:"id"`                  // Event UUID
	Type      Type            `json:"event"`               // Event name
	SessionID string          `json:"sessionId,omitempty"` // Session the event concerns, if any
	Timestamp time.Time       `json:"timestamp"`           // Event creation time
	Data      json.RawMessage `json:"data"`                // Event-specific payload
}

// Type is the wire name of a server event.
type Type string

const (
	TypeSessions       Type = "sessions"
	TypeAuthResult     Type = "auth-result"
	TypeTimerUpdate    Type = "timer-update"
	TypeRaceModeChange Type = "race-mode-change"
	TypeLapRecorded    Type = "lap:recorded"
	TypeRaceStarted    Type = "race-started"
	TypeRaceStopped    Type = "race-stopped"
	TypeRaceCompleted  Type = "race-completed"
	TypeRaceState      Type = "race-state"
)

// New builds an event with a fresh ID. A zero sessionID is omitted.
func New(typ Type, sessionID models.SessionID, now time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}

	ev := &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: now.UTC(),
		Data:      data,
	}
	if sessionID != 0 {
		ev.SessionID = sessionID.String()
	}
	return ev, nil
}

// Decode unmarshals the event payload into the matching payload type.
func Decode(ev *Event) (any, error) {
	var target any
	switch ev.Type {
	case TypeSessions:
		target = &[]models.Session{}
	case TypeAuthResult:
		target = new(bool)
	case TypeTimerUpdate:
		target = new(*models.RaceTick)
	case TypeRaceModeChange:
		target = &RaceModeChangePayload{}
	case TypeLapRecorded:
		target = &models.LapRecord{}
	case TypeRaceStarted:
		target = &RaceStartedPayload{}
	case TypeRaceStopped, TypeRaceCompleted:
		target = &RaceLifecyclePayload{}
	case TypeRaceState:
		target = &RaceStatePayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	if err := json.Unmarshal(ev.Data, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", ev.Type, err)
	}
	return target, nil
}
