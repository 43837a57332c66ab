package access

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// ErrUnauthorized is returned when a role may not issue a command.
var ErrUnauthorized = errors.New("unauthorized")

// Command names shared by the WebSocket and RPC surfaces.
const (
	CmdAddSession     = "add-session"
	CmdDeleteSession  = "delete-session"
	CmdAddDriver      = "add-driver"
	CmdEditDriver     = "edit-driver"
	CmdRemoveDriver   = "remove-driver"
	CmdLapCrossed     = "lap:crossed"
	CmdTimerUpdate    = "timer-update"
	CmdRaceModeChange = "race-mode-change"
	CmdRaceStarted    = "race-started"
	CmdRaceStopped    = "race-stopped"
	CmdRaceCompleted  = "race-completed"
)

var permissions = map[string][]models.Role{
	CmdAddSession:     {models.RoleReceptionist},
	CmdDeleteSession:  {models.RoleReceptionist, models.RoleSafety},
	CmdAddDriver:      {models.RoleReceptionist},
	CmdEditDriver:     {models.RoleReceptionist},
	CmdRemoveDriver:   {models.RoleReceptionist},
	CmdLapCrossed:     {models.RoleObserver, models.RoleSafety},
	CmdTimerUpdate:    {models.RoleSafety},
	CmdRaceModeChange: {models.RoleSafety},
	CmdRaceStarted:    {models.RoleSafety},
	CmdRaceStopped:    {models.RoleSafety},
	CmdRaceCompleted:  {models.RoleSafety},
}

// Keys holds the shared secret for each role.
type Keys struct {
	Receptionist string
	Observer     string
	Safety       string
}

// Gate validates role keys and holds the permission table.
type Gate struct {
	secrets map[models.Role][]byte
}

// NewGate builds a gate. Empty keys never match.
func NewGate(keys Keys) *Gate {
	secrets := make(map[models.Role][]byte, 3)
	for role, key := range map[models.Role]string{
		models.RoleReceptionist: keys.Receptionist,
		models.RoleObserver:     keys.Observer,
		models.RoleSafety:       keys.Safety,
	} {
		if key != "" {
			secrets[role] = []byte(key)
		}
	}
	return &Gate{secrets: secrets}
}

// Authenticate checks key against the secret configured for role.
func (g *Gate) Authenticate(role, key string) (models.Role, bool) {
	r := models.Role(role)
	if !r.Valid() {
		return models.RoleNone, false
	}
	secret, ok := g.secrets[r]
	if !ok {
		return models.RoleNone, false
	}
	if subtle.ConstantTimeCompare(secret, []byte(key)) != 1 {
		return models.RoleNone, false
	}
	return r, true
}

// Authorize reports whether role may issue command. Commands missing from
// the table are open to every connection.
func Authorize(role models.Role, command string) error {
	allowed, ok := permissions[command]
	if !ok {
		return nil
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	if role == models.RoleNone {
		return fmt.Errorf("%w: %s requires authentication", ErrUnauthorized, command)
	}
	return fmt.Errorf("%w: role %s may not %s", ErrUnauthorized, role, command)
}

// Restricted reports whether command needs an authenticated role.
func Restricted(command string) bool {
	_, ok := permissions[command]
	return ok
}
