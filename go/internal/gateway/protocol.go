package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/racetrack/go/internal/models"
)

const eventAck = "ack"

// Client event names that are not in the permission table.
const (
	eventAuth            = "auth"
	eventRequestRaceData = "request-race-data"
	eventGetSessions     = "get-sessions"
	eventGetRaceState    = "get-race-state"
	eventJoinSession     = "join-session"
)

var ErrMalformedFrame = errors.New("malformed frame")

// ClientFrame is one client message. A frame carrying Ack is a command and
// is always answered; a frame without it is a notification.
type ClientFrame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckFrame answers a command frame.
type AckFrame struct {
	Event string    `json:"event"`
	Ack   int64     `json:"ack"`
	Data  AckResult `json:"data"`
}

// AckResult is {ok:true,...} on success or {error} on failure.
type AckResult struct {
	OK      bool            `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Session *models.Session `json:"session,omitempty"`
	Deleted *models.Session `json:"deleted,omitempty"`
	Driver  *models.Driver  `json:"driver,omitempty"`
}

func ackError(err error) AckResult {
	return AckResult{Error: err.Error()}
}

// CarNumber decodes an optional car number sent as a number, a numeric
// string, null, or "". The last two leave Value nil.
type CarNumber struct {
	Value *int
}

func (c *CarNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		c.Value = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			c.Value = nil
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid carNumber %q", s)
		}
		c.Value = &n
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid carNumber: %w", err)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("invalid carNumber %v", f)
	}
	n := int(f)
	c.Value = &n
	return nil
}

func (c CarNumber) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(*c.Value)), nil
}

type authRequest struct {
	Role string `json:"role"`
	Key  string `json:"key"`
}

type sessionRef struct {
	SessionID models.SessionID `json:"sessionId"`
}

type addSessionRequest struct {
	Name string            `json:"name"`
	ID   *models.SessionID `json:"id,omitempty"`
}

type addDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Name      string           `json:"name"`
	CarNumber CarNumber        `json:"carNumber"`
}

type editDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	OldName   string           `json:"oldName"`
	NewName   string           `json:"newName"`
	CarNumber CarNumber        `json:"carNumber"`
}

type removeDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Name      string           `json:"name"`
}

type lapCrossedRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	CarNumber CarNumber        `json:"carNumber"`
	CrossedAt *models.Instant  `json:"crossedAt,omitempty"`
}

type raceModeRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Mode      models.RaceMode  `json:"mode"`
}

type raceStartedRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Duration  *int             `json:"duration,omitempty"` // seconds
}

// decodeData unmarshals a frame payload. A missing payload decodes as {}.
func decodeData(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func parseFrame(message []byte) (*ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Event == "" {
		return &frame, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	return &frame, nil
}
