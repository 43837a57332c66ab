package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/access"
	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/timing"
)

// Engine is what the gateway needs from the coordination engine.
type Engine interface {
	CreateSession(name string, id *models.SessionID) (*models.Session, error)
	DeleteSession(id models.SessionID) (*models.Session, error)
	ListSessions() []models.Session
	WithSessions(fn func([]models.Session))
	Leaderboard(id models.SessionID) ([]timing.Standing, error)
	AddDriver(sessionID models.SessionID, name string, carNumber *int) (*models.Driver, error)
	EditDriver(sessionID models.SessionID, oldName, newName string, carNumber *int) (*models.Driver, error)
	RemoveDriver(sessionID models.SessionID, name string) error

	RecordCrossing(sessionID models.SessionID, carNumber int, clientAt *models.Instant)
	PushTimerTick(tick models.RaceTick)
	ChangeMode(sessionID models.SessionID, mode models.RaceMode)
	StartRace(sessionID models.SessionID, duration time.Duration)
	StopRace(sessionID models.SessionID)
	CompleteRace(sessionID models.SessionID)

	CurrentRaceData() *models.RaceTick
	RaceStateFor(sessionID models.SessionID) events.RaceStatePayload
}

// Sender delivers replies to a single connection.
type Sender interface {
	SendEvent(conn *Connection, typ events.Type, sessionID models.SessionID, payload any)
	SendAck(conn *Connection, ack int64, result AckResult)
}

var errInvalidCredentials = errors.New("invalid credentials")

// Dispatcher routes client frames to the engine.
type Dispatcher struct {
	engine    Engine
	gate      *access.Gate
	sender    Sender
	clock     clockwork.Clock
	authDelay time.Duration
}

// NewDispatcher creates a dispatcher. authDelay slows every auth reply on
// the requesting connection only.
func NewDispatcher(engine Engine, gate *access.Gate, sender Sender, clock clockwork.Clock, authDelay time.Duration) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		engine:    engine,
		gate:      gate,
		sender:    sender,
		clock:     clock,
		authDelay: authDelay,
	}
}

// OnConnect pushes the session snapshot to a new connection.
func (d *Dispatcher) OnConnect(conn *Connection) {
	d.sendSessions(conn)
}

// HandleMessage decodes one frame and dispatches it.
func (d *Dispatcher) HandleMessage(conn *Connection, message []byte) {
	frame, err := parseFrame(message)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID).Msg("dropping malformed frame")
		if frame != nil && frame.Ack != nil {
			d.sender.SendAck(conn, *frame.Ack, ackError(err))
		}
		return
	}

	logger := log.With().
		Str("connection_id", conn.ID).
		Str("event", frame.Event).
		Str("role", string(conn.Role())).
		Logger()

	if access.Restricted(frame.Event) {
		if err := access.Authorize(conn.Role(), frame.Event); err != nil {
			logger.Warn().Err(err).Msg("rejected command")
			d.reply(conn, frame, AckResult{}, err)
			return
		}
	}

	result, err := d.dispatch(conn, frame)
	if err != nil {
		logger.Debug().Err(err).Msg("command failed")
	}
	d.reply(conn, frame, result, err)
}

func (d *Dispatcher) reply(conn *Connection, frame *ClientFrame, result AckResult, err error) {
	if frame.Ack == nil {
		return
	}
	if err != nil {
		d.sender.SendAck(conn, *frame.Ack, ackError(err))
		return
	}
	result.OK = true
	d.sender.SendAck(conn, *frame.Ack, result)
}

func (d *Dispatcher) dispatch(conn *Connection, frame *ClientFrame) (AckResult, error) {
	switch frame.Event {
	case eventAuth:
		return d.handleAuth(conn, frame)

	case eventRequestRaceData:
		d.sender.SendEvent(conn, events.TypeTimerUpdate, 0, d.engine.CurrentRaceData())
		return AckResult{}, nil

	case eventGetSessions:
		d.sendSessions(conn)
		return AckResult{}, nil

	case eventGetRaceState:
		var req sessionRef
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		d.sender.SendEvent(conn, events.TypeRaceState, req.SessionID, d.engine.RaceStateFor(req.SessionID))
		return AckResult{}, nil

	case eventJoinSession:
		var req sessionRef
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		conn.JoinSession(req.SessionID)
		return AckResult{}, nil

	case access.CmdAddSession:
		var req addSessionRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		session, err := d.engine.CreateSession(req.Name, req.ID)
		if err != nil {
			return AckResult{}, err
		}
		return AckResult{Session: session}, nil

	case access.CmdDeleteSession:
		var req sessionRef
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		deleted, err := d.engine.DeleteSession(req.SessionID)
		if err != nil {
			return AckResult{}, err
		}
		return AckResult{Deleted: deleted}, nil

	case access.CmdAddDriver:
		var req addDriverRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		driver, err := d.engine.AddDriver(req.SessionID, req.Name, req.CarNumber.Value)
		if err != nil {
			return AckResult{}, err
		}
		return AckResult{Driver: driver}, nil

	case access.CmdEditDriver:
		var req editDriverRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		driver, err := d.engine.EditDriver(req.SessionID, req.OldName, req.NewName, req.CarNumber.Value)
		if err != nil {
			return AckResult{}, err
		}
		return AckResult{Driver: driver}, nil

	case access.CmdRemoveDriver:
		var req removeDriverRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		return AckResult{}, d.engine.RemoveDriver(req.SessionID, req.Name)

	case access.CmdLapCrossed:
		var req lapCrossedRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		if req.CarNumber.Value == nil {
			return AckResult{}, fmt.Errorf("%w: carNumber is required", ErrMalformedFrame)
		}
		d.engine.RecordCrossing(req.SessionID, *req.CarNumber.Value, req.CrossedAt)
		return AckResult{}, nil

	case access.CmdTimerUpdate:
		var tick models.RaceTick
		if err := decodeData(frame.Data, &tick); err != nil {
			return AckResult{}, err
		}
		d.engine.PushTimerTick(tick)
		return AckResult{}, nil

	case access.CmdRaceModeChange:
		var req raceModeRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		d.engine.ChangeMode(req.SessionID, req.Mode)
		return AckResult{}, nil

	case access.CmdRaceStarted:
		var req raceStartedRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		var duration time.Duration
		if req.Duration != nil && *req.Duration > 0 {
			duration = time.Duration(*req.Duration) * time.Second
		}
		d.engine.StartRace(req.SessionID, duration)
		return AckResult{}, nil

	case access.CmdRaceStopped:
		var req sessionRef
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		d.engine.StopRace(req.SessionID)
		return AckResult{}, nil

	case access.CmdRaceCompleted:
		var req sessionRef
		if err := decodeData(frame.Data, &req); err != nil {
			return AckResult{}, err
		}
		d.engine.CompleteRace(req.SessionID)
		return AckResult{}, nil
	}

	return AckResult{}, fmt.Errorf("unknown event %q", frame.Event)
}

// handleAuth binds a role once per connection. The delay blocks only this
// connection's read loop.
func (d *Dispatcher) handleAuth(conn *Connection, frame *ClientFrame) (AckResult, error) {
	var req authRequest
	if err := decodeData(frame.Data, &req); err != nil {
		return AckResult{}, err
	}

	if d.authDelay > 0 {
		d.clock.Sleep(d.authDelay)
	}

	if existing := conn.Role(); existing != models.RoleNone {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("role", string(existing)).
			Str("requested_role", req.Role).
			Msg("connection already authenticated")
		d.sender.SendEvent(conn, events.TypeAuthResult, 0, false)
		return AckResult{}, errors.New("connection already authenticated")
	}

	role, ok := d.gate.Authenticate(req.Role, req.Key)
	if ok {
		ok = conn.BindRole(role)
	}
	d.sender.SendEvent(conn, events.TypeAuthResult, 0, ok)

	if !ok {
		log.Warn().Str("connection_id", conn.ID).Str("requested_role", req.Role).Msg("authentication failed")
		return AckResult{}, errInvalidCredentials
	}

	log.Info().Str("connection_id", conn.ID).Str("role", string(role)).Msg("connection authenticated")
	d.sendSessions(conn)
	return AckResult{}, nil
}

func (d *Dispatcher) sendSessions(conn *Connection) {
	d.engine.WithSessions(func(list []models.Session) {
		d.sender.SendEvent(conn, events.TypeSessions, 0, list)
	})
}
