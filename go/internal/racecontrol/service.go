package racecontrol

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/access"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/sessions"
)

const (
	// ServiceName is the fully-qualified name of the race control service.
	ServiceName = "racetrack.v1.RaceControlService"

	// Procedure paths
	ListSessionsProcedure  = "/racetrack.v1.RaceControlService/ListSessions"
	GetRaceDataProcedure   = "/racetrack.v1.RaceControlService/GetRaceData"
	AddSessionProcedure    = "/racetrack.v1.RaceControlService/AddSession"
	DeleteSessionProcedure = "/racetrack.v1.RaceControlService/DeleteSession"
	AddDriverProcedure     = "/racetrack.v1.RaceControlService/AddDriver"
	EditDriverProcedure    = "/racetrack.v1.RaceControlService/EditDriver"
	RemoveDriverProcedure  = "/racetrack.v1.RaceControlService/RemoveDriver"

	// Credential headers, checked by the same gate as the socket auth event.
	RoleHeader = "X-Racetrack-Role"
	KeyHeader  = "X-Racetrack-Key"
)

var errBadCredentials = errors.New("invalid role or key")

// Engine defines what the RPC layer needs from the coordination engine
type Engine interface {
	CreateSession(name string, id *models.SessionID) (*models.Session, error)
	DeleteSession(id models.SessionID) (*models.Session, error)
	ListSessions() []models.Session
	AddDriver(sessionID models.SessionID, name string, carNumber *int) (*models.Driver, error)
	EditDriver(sessionID models.SessionID, oldName, newName string, carNumber *int) (*models.Driver, error)
	RemoveDriver(sessionID models.SessionID, name string) error
	CurrentRaceData() *models.RaceTick
}

// Service implements the race control RPCs for front-desk tooling that
// prefers request/response over a socket.
type Service struct {
	engine Engine
	gate   *access.Gate
}

// NewService creates a new race control service
func NewService(engine Engine, gate *access.Gate) *Service {
	return &Service{
		engine: engine,
		gate:   gate,
	}
}

// ListSessions returns the current session snapshot
func (s *Service) ListSessions(ctx context.Context, req *connect.Request[ListSessionsRequest]) (*connect.Response[ListSessionsResponse], error) {
	return connect.NewResponse(&ListSessionsResponse{Sessions: s.engine.ListSessions()}), nil
}

// GetRaceData returns the last tick, or nil before any tick
func (s *Service) GetRaceData(ctx context.Context, req *connect.Request[GetRaceDataRequest]) (*connect.Response[GetRaceDataResponse], error) {
	return connect.NewResponse(&GetRaceDataResponse{Race: s.engine.CurrentRaceData()}), nil
}

// AddSession creates a session
func (s *Service) AddSession(ctx context.Context, req *connect.Request[AddSessionRequest]) (*connect.Response[SessionResponse], error) {
	if err := s.authorize(req.Header(), access.CmdAddSession); err != nil {
		return nil, err
	}

	session, err := s.engine.CreateSession(req.Msg.Name, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SessionResponse{Session: session}), nil
}

// DeleteSession removes a session and returns it
func (s *Service) DeleteSession(ctx context.Context, req *connect.Request[DeleteSessionRequest]) (*connect.Response[SessionResponse], error) {
	if err := s.authorize(req.Header(), access.CmdDeleteSession); err != nil {
		return nil, err
	}

	session, err := s.engine.DeleteSession(req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SessionResponse{Session: session}), nil
}

// AddDriver adds a driver to a session
func (s *Service) AddDriver(ctx context.Context, req *connect.Request[AddDriverRequest]) (*connect.Response[DriverResponse], error) {
	if err := s.authorize(req.Header(), access.CmdAddDriver); err != nil {
		return nil, err
	}

	driver, err := s.engine.AddDriver(req.Msg.SessionID, req.Msg.Name, req.Msg.CarNumber)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DriverResponse{Driver: driver}), nil
}

// EditDriver renames a driver or changes their car
func (s *Service) EditDriver(ctx context.Context, req *connect.Request[EditDriverRequest]) (*connect.Response[DriverResponse], error) {
	if err := s.authorize(req.Header(), access.CmdEditDriver); err != nil {
		return nil, err
	}

	driver, err := s.engine.EditDriver(req.Msg.SessionID, req.Msg.OldName, req.Msg.NewName, req.Msg.CarNumber)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DriverResponse{Driver: driver}), nil
}

// RemoveDriver removes a driver from a session
func (s *Service) RemoveDriver(ctx context.Context, req *connect.Request[RemoveDriverRequest]) (*connect.Response[RemoveDriverResponse], error) {
	if err := s.authorize(req.Header(), access.CmdRemoveDriver); err != nil {
		return nil, err
	}

	if err := s.engine.RemoveDriver(req.Msg.SessionID, req.Msg.Name); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RemoveDriverResponse{}), nil
}

// authorize resolves the caller's role from the credential headers. No
// headers means an anonymous caller; a wrong key is rejected outright.
func (s *Service) authorize(header http.Header, command string) error {
	role := models.RoleNone
	if name := header.Get(RoleHeader); name != "" {
		r, ok := s.gate.Authenticate(name, header.Get(KeyHeader))
		if !ok {
			log.Warn().Str("requested_role", name).Str("command", command).Msg("rpc authentication failed")
			return connect.NewError(connect.CodeUnauthenticated, errBadCredentials)
		}
		role = r
	}

	if err := access.Authorize(role, command); err != nil {
		log.Warn().Err(err).Str("role", string(role)).Msg("rejected rpc command")
		return connect.NewError(connect.CodePermissionDenied, err)
	}
	return nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return connect.NewError(connect.CodePermissionDenied, err)
	case sessions.IsNotFound(err):
		return connect.NewError(connect.CodeNotFound, err)
	case sessions.IsValidation(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
