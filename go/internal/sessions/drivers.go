package sessions

import (
	"fmt"
	"strings"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// AddDriver registers a driver in a session. When requestedCar is nil the
// lowest unused car number is assigned.
func (s *Store) AddDriver(sessionID models.SessionID, name string, requestedCar *int) (*models.Driver, error) {
	session := s.find(sessionID)
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if len(session.Drivers) >= models.MaxDriversPerSession {
		return nil, ErrSessionFull
	}
	if indexOfDriver(session, name) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDriverName, name)
	}

	var car int
	if requestedCar != nil {
		if err := validateCar(session, *requestedCar, -1); err != nil {
			return nil, err
		}
		car = *requestedCar
	} else {
		car = lowestFreeCar(session)
		if car == 0 {
			return nil, ErrNoCarNumbersAvailable
		}
	}

	session.Drivers = append(session.Drivers, models.Driver{Name: name, CarNumber: car})
	out := session.Drivers[len(session.Drivers)-1].Clone()
	return &out, nil
}

// EditDriver renames a driver and/or moves it to another car. An empty
// newName keeps the current name; a nil requestedCar keeps the car.
func (s *Store) EditDriver(sessionID models.SessionID, oldName, newName string, requestedCar *int) (*models.Driver, error) {
	session := s.find(sessionID)
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	idx := indexOfDriver(session, strings.TrimSpace(oldName))
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotFound, oldName)
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		newName = session.Drivers[idx].Name
	}
	if other := indexOfDriver(session, newName); other >= 0 && other != idx {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDriverName, newName)
	}

	car := session.Drivers[idx].CarNumber
	if requestedCar != nil {
		if err := validateCar(session, *requestedCar, idx); err != nil {
			return nil, err
		}
		car = *requestedCar
	}

	session.Drivers[idx].Name = newName
	session.Drivers[idx].CarNumber = car

	out := session.Drivers[idx].Clone()
	return &out, nil
}

// RemoveDriver deletes a driver by name.
func (s *Store) RemoveDriver(sessionID models.SessionID, name string) error {
	session := s.find(sessionID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	idx := indexOfDriver(session, strings.TrimSpace(name))
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrDriverNotFound, name)
	}

	session.Drivers = append(session.Drivers[:idx], session.Drivers[idx+1:]...)
	return nil
}

// validateCar checks range and uniqueness. self is the index of the driver
// being edited, whose own number never counts as taken.
func validateCar(session *models.Session, car int, self int) error {
	if !models.CarNumberInRange(car) {
		return fmt.Errorf("%w: got %d", ErrInvalidCarNumber, car)
	}
	for i, d := range session.Drivers {
		if i != self && d.CarNumber == car {
			return fmt.Errorf("%w: %d", ErrCarNumberTaken, car)
		}
	}
	return nil
}

func lowestFreeCar(session *models.Session) int {
	used := make(map[int]bool, len(session.Drivers))
	for _, d := range session.Drivers {
		used[d.CarNumber] = true
	}
	for n := models.MinCarNumber; n <= models.MaxCarNumber; n++ {
		if !used[n] {
			return n
		}
	}
	return 0
}

func indexOfDriver(session *models.Session, name string) int {
	for i, d := range session.Drivers {
		if d.Name == name {
			return i
		}
	}
	return -1
}
