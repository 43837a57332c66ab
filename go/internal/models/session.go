package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxDriversPerSession is the size of the kart fleet.
	MaxDriversPerSession = 8
	MinCarNumber         = 1
	MaxCarNumber         = 8
)

// SessionID identifies a session. Clients store it in sessionStorage and
// send it back as a string, so decoding accepts both forms.
type SessionID int64

func (id SessionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id *SessionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", s)
		}
		*id = SessionID(n)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	*id = SessionID(n)
	return nil
}

// ParseSessionID parses a path or query value.
func ParseSessionID(s string) (SessionID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return SessionID(n), nil
}

// Session represents one timed heat and its roster.
type Session struct {
	ID      SessionID `json:"id"`
	Name    string    `json:"name"`
	Drivers []Driver  `json:"drivers"`
}

// Driver represents a competitor entry within a session.
type Driver struct {
	Name                     string   `json:"name"`
	CarNumber                int      `json:"carNumber"`
	FastestLapMs             *int64   `json:"fastestLapMs"`
	CurrentLap               int      `json:"currentLap"`
	LastLapCrossingTimestamp *Instant `json:"lastLapCrossingTimestamp"`
}

// Clone returns a deep copy so callers can hand sessions to other
// goroutines without sharing driver slices or pointer fields.
func (s Session) Clone() Session {
	out := Session{ID: s.ID, Name: s.Name, Drivers: make([]Driver, len(s.Drivers))}
	for i, d := range s.Drivers {
		out.Drivers[i] = d.Clone()
	}
	return out
}

// Clone returns a deep copy of the driver.
func (d Driver) Clone() Driver {
	out := d
	if d.FastestLapMs != nil {
		v := *d.FastestLapMs
		out.FastestLapMs = &v
	}
	if d.LastLapCrossingTimestamp != nil {
		v := *d.LastLapCrossingTimestamp
		out.LastLapCrossingTimestamp = &v
	}
	return out
}

// CarNumberInRange reports whether n is a valid kart number.
func CarNumberInRange(n int) bool {
	return n >= MinCarNumber && n <= MaxCarNumber
}

// LapRecord is the targeted event emitted for every crossing.
type LapRecord struct {
	SessionID  SessionID `json:"sessionId"`
	DriverID   string    `json:"driverId"`
	CarNumber  int       `json:"carNumber"`
	DriverName string    `json:"driverName"`
	LapNumber  int       `json:"lapNumber"`
	LapTimeMs  *int64    `json:"lapTimeMs,omitempty"`
	CrossedAt  Instant   `json:"crossedAt"`
}
