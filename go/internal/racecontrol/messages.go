package racecontrol

import "github.com/mcdev12/racetrack/go/internal/models"

type ListSessionsRequest struct{}

type ListSessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}

type GetRaceDataRequest struct{}

// GetRaceDataResponse carries a nil Race before the first tick.
type GetRaceDataResponse struct {
	Race *models.RaceTick `json:"race"`
}

type AddSessionRequest struct {
	Name string            `json:"name"`
	ID   *models.SessionID `json:"id,omitempty"`
}

type SessionResponse struct {
	Session *models.Session `json:"session"`
}

type DeleteSessionRequest struct {
	SessionID models.SessionID `json:"sessionId"`
}

type AddDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Name      string           `json:"name"`
	CarNumber *int             `json:"carNumber,omitempty"`
}

type EditDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	OldName   string           `json:"oldName"`
	NewName   string           `json:"newName"`
	CarNumber *int             `json:"carNumber,omitempty"`
}

type DriverResponse struct {
	Driver *models.Driver `json:"driver"`
}

type RemoveDriverRequest struct {
	SessionID models.SessionID `json:"sessionId"`
	Name      string           `json:"name"`
}

type RemoveDriverResponse struct{}
