package sessions

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// Store is the authoritative session list. It is not safe for concurrent
// use; the engine serializes every call.
type Store struct {
	sessions []*models.Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Create adds a session. When suggestedID is nil the id is derived from now
// in milliseconds, so two creates within the same millisecond collide and
// the second one fails with ErrDuplicateID.
func (s *Store) Create(name string, suggestedID *models.SessionID, now time.Time) (*models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	id := models.SessionID(now.UnixMilli())
	if suggestedID != nil {
		id = *suggestedID
	}

	for _, existing := range s.sessions {
		if existing.ID == id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		if existing.Name == name {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}

	session := &models.Session{ID: id, Name: name, Drivers: []models.Driver{}}
	s.sessions = append(s.sessions, session)

	out := session.Clone()
	return &out, nil
}

// Delete removes a session together with its drivers.
func (s *Store) Delete(id models.SessionID) (*models.Session, error) {
	for i, session := range s.sessions {
		if session.ID != id {
			continue
		}
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
		out := session.Clone()
		return &out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// List returns a deep copy of every session in creation order.
func (s *Store) List() []models.Session {
	out := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	return out
}

// Get returns a copy of one session.
func (s *Store) Get(id models.SessionID) (*models.Session, bool) {
	session := s.find(id)
	if session == nil {
		return nil, false
	}
	out := session.Clone()
	return &out, true
}

// Replace swaps the whole list, used when restoring a snapshot.
func (s *Store) Replace(list []models.Session) {
	s.sessions = make([]*models.Session, 0, len(list))
	for _, session := range list {
		c := session.Clone()
		if c.Drivers == nil {
			c.Drivers = []models.Driver{}
		}
		s.sessions = append(s.sessions, &c)
	}
}

// Mutate runs fn against the live session record. The timing engine uses it
// to update lap fields in place.
func (s *Store) Mutate(id models.SessionID, fn func(*models.Session) error) error {
	session := s.find(id)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return fn(session)
}

func (s *Store) find(id models.SessionID) *models.Session {
	for _, session := range s.sessions {
		if session.ID == id {
			return session
		}
	}
	return nil
}
