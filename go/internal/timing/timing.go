package timing

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// ClockSkewTolerance is how far a client-reported crossing may drift from
// the server clock before a warning is logged.
const ClockSkewTolerance = 1500 * time.Millisecond

// ErrUnknownCar is returned when the session or car cannot be resolved.
// Crossings are best-effort telemetry, so callers drop it silently.
var ErrUnknownCar = errors.New("unknown session or car")

// SessionMutator is what the lap engine needs from the session store.
type SessionMutator interface {
	Mutate(id models.SessionID, fn func(*models.Session) error) error
}

// Engine converts raw crossings into lap counts and lap times.
type Engine struct {
	sessions SessionMutator
}

// NewEngine creates a lap timing engine over the given store.
func NewEngine(sessions SessionMutator) *Engine {
	return &Engine{sessions: sessions}
}

// RecordCrossing registers one lap-line transit for carNumber at server
// time now. clientAt is advisory only.
func (e *Engine) RecordCrossing(sessionID models.SessionID, carNumber int, clientAt *models.Instant, now time.Time) (*models.LapRecord, error) {
	serverNow := models.NewInstant(now)

	if clientAt != nil && !clientAt.IsZero() {
		skew := serverNow.Sub(clientAt.Time)
		if skew < 0 {
			skew = -skew
		}
		if skew > ClockSkewTolerance {
			log.Warn().
				Str("session_id", sessionID.String()).
				Int("car_number", carNumber).
				Dur("skew", skew).
				Msg("client crossing time diverges from server clock")
		}
	}

	var record *models.LapRecord
	err := e.sessions.Mutate(sessionID, func(session *models.Session) error {
		driver := findByCar(session, carNumber)
		if driver == nil {
			return fmt.Errorf("%w: car %d", ErrUnknownCar, carNumber)
		}

		var lapTimeMs *int64
		if prev := driver.LastLapCrossingTimestamp; prev != nil {
			if delta := serverNow.Sub(prev.Time); delta > 0 {
				ms := delta.Milliseconds()
				lapTimeMs = &ms
			}
		}

		driver.CurrentLap++
		if lapTimeMs != nil && (driver.FastestLapMs == nil || *lapTimeMs < *driver.FastestLapMs) {
			best := *lapTimeMs
			driver.FastestLapMs = &best
		}
		crossed := serverNow
		driver.LastLapCrossingTimestamp = &crossed

		record = &models.LapRecord{
			SessionID:  session.ID,
			DriverID:   strconv.Itoa(driver.CarNumber),
			CarNumber:  driver.CarNumber,
			DriverName: driver.Name,
			LapNumber:  driver.CurrentLap,
			LapTimeMs:  lapTimeMs,
			CrossedAt:  serverNow,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownCar) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknownCar, err)
	}

	return record, nil
}

// Standing is one leaderboard row.
type Standing struct {
	Position     int    `json:"position,omitempty"`
	CarNumber    int    `json:"carNumber"`
	Name         string `json:"name"`
	FastestLapMs *int64 `json:"fastestLapMs"`
	CurrentLap   int    `json:"currentLap"`
}

// Leaderboard orders drivers by fastest lap. Drivers without a timed lap
// sort last and carry no position.
func Leaderboard(session models.Session) []Standing {
	rows := make([]Standing, 0, len(session.Drivers))
	for _, d := range session.Drivers {
		d = d.Clone()
		rows = append(rows, Standing{
			CarNumber:    d.CarNumber,
			Name:         d.Name,
			FastestLapMs: d.FastestLapMs,
			CurrentLap:   d.CurrentLap,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].FastestLapMs, rows[j].FastestLapMs
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	pos := 1
	for i := range rows {
		if rows[i].FastestLapMs == nil {
			continue
		}
		rows[i].Position = pos
		pos++
	}
	return rows
}

// FormatLap renders a lap time as m:ss.mmm.
func FormatLap(ms int64) string {
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms%60000)/1000, ms%1000)
}

func findByCar(session *models.Session, car int) *models.Driver {
	for i := range session.Drivers {
		if session.Drivers[i].CarNumber == car {
			return &session.Drivers[i]
		}
	}
	return nil
}
