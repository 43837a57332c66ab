package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/racetrack/go/internal/models"
)

var epoch = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func TestCreateSession(t *testing.T) {
	s := NewStore()

	session, err := s.Create("  Heat 1 ", nil, epoch)
	require.NoError(t, err)
	assert.Equal(t, models.SessionID(epoch.UnixMilli()), session.ID)
	assert.Equal(t, "Heat 1", session.Name)
	assert.Empty(t, session.Drivers)
}

func TestCreateSessionRejectsInvalidAndDuplicates(t *testing.T) {
	s := NewStore()
	_, err := s.Create("Heat 1", nil, epoch)
	require.NoError(t, err)

	_, err = s.Create("   ", nil, epoch.Add(time.Second))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Create("Heat 1", nil, epoch.Add(time.Second))
	assert.ErrorIs(t, err, ErrDuplicateName)

	// same millisecond, different name
	_, err = s.Create("Heat 2", nil, epoch)
	assert.ErrorIs(t, err, ErrDuplicateID)

	id := models.SessionID(42)
	_, err = s.Create("Heat 3", &id, epoch)
	require.NoError(t, err)
	_, err = s.Create("Heat 4", &id, epoch.Add(time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.True(t, IsValidation(err))
}

func TestDeleteSessionRemovesDrivers(t *testing.T) {
	s := NewStore()
	session, err := s.Create("Heat 1", nil, epoch)
	require.NoError(t, err)
	_, err = s.AddDriver(session.ID, "Alice", nil)
	require.NoError(t, err)

	deleted, err := s.Delete(session.ID)
	require.NoError(t, err)
	assert.Len(t, deleted.Drivers, 1)
	assert.Empty(t, s.List())

	_, err = s.Delete(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsNotFound(err))
}

func TestListReturnsCopies(t *testing.T) {
	s := NewStore()
	session, err := s.Create("Heat 1", nil, epoch)
	require.NoError(t, err)
	_, err = s.AddDriver(session.ID, "Alice", nil)
	require.NoError(t, err)

	list := s.List()
	list[0].Drivers[0].Name = "Mallory"
	list[0].Name = "changed"

	again := s.List()
	assert.Equal(t, "Heat 1", again[0].Name)
	assert.Equal(t, "Alice", again[0].Drivers[0].Name)
}

func TestListKeepsCreationOrder(t *testing.T) {
	s := NewStore()
	for i, name := range []string{"Heat 1", "Heat 2", "Heat 3"} {
		_, err := s.Create(name, nil, epoch.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	var names []string
	for _, session := range s.List() {
		names = append(names, session.Name)
	}
	assert.Equal(t, []string{"Heat 1", "Heat 2", "Heat 3"}, names)
}
