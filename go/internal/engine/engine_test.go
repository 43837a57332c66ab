package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/race"
	"github.com/mcdev12/racetrack/go/internal/sessions"
	"github.com/mcdev12/racetrack/go/internal/snapshot"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.Event(nil), r.events...)
}

func (r *recorder) ofType(typ events.Type) []*events.Event {
	var out []*events.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) types() []events.Type {
	var out []events.Type
	for _, ev := range r.all() {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func lastSessions(t *testing.T, r *recorder) []models.Session {
	t.Helper()
	evs := r.ofType(events.TypeSessions)
	require.NotEmpty(t, evs)
	var out []models.Session
	require.NoError(t, json.Unmarshal(evs[len(evs)-1].Data, &out))
	return out
}

func ticks(t *testing.T, r *recorder) []models.RaceTick {
	t.Helper()
	var out []models.RaceTick
	for _, ev := range r.ofType(events.TypeTimerUpdate) {
		var tick models.RaceTick
		require.NoError(t, json.Unmarshal(ev.Data, &tick))
		out = append(out, tick)
	}
	return out
}

type countingSaver struct {
	mu sync.Mutex
	n  int
}

func (c *countingSaver) Schedule() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *recorder, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	rec := &recorder{}
	e := New(clock, sessions.NewStore(), rec)
	t.Cleanup(e.Close)
	return e, rec, clock
}

func intPtr(n int) *int { return &n }

func TestHeatScenario(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	saver := &countingSaver{}
	e.SetSaver(saver)

	heat, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionID(t0.UnixMilli()), heat.ID)

	alice, err := e.AddDriver(heat.ID, "Alice", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, alice.CarNumber)

	bob, err := e.AddDriver(heat.ID, "Bob", intPtr(5))
	require.NoError(t, err)
	assert.Equal(t, 5, bob.CarNumber)

	_, err = e.AddDriver(heat.ID, "Carol", intPtr(5))
	assert.ErrorIs(t, err, sessions.ErrCarNumberTaken)

	list := lastSessions(t, rec)
	require.Len(t, list, 1)
	require.Len(t, list[0].Drivers, 2)
	assert.Equal(t, "Alice", list[0].Drivers[0].Name)
	assert.Equal(t, "Bob", list[0].Drivers[1].Name)

	assert.Len(t, rec.ofType(events.TypeSessions), 3, "failed add must not broadcast")
	assert.Equal(t, 3, saver.n)
}

func TestDeletedSessionLeavesBroadcasts(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	a, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	b, err := e.CreateSession("Heat 2", nil)
	require.NoError(t, err)

	_, err = e.DeleteSession(a.ID)
	require.NoError(t, err)

	_, err = e.AddDriver(b.ID, "Alice", nil)
	require.NoError(t, err)

	for _, s := range lastSessions(t, rec) {
		assert.NotEqual(t, a.ID, s.ID)
	}

	_, err = e.DeleteSession(a.ID)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestDeleteSessionKeepsRaceState(t *testing.T) {
	e, _, _ := newTestEngine(t)

	s, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	e.PushTimerTick(models.RaceTick{SessionID: s.ID, TimeLeft: 300, RaceActive: true, RaceMode: models.RaceModeSafe})

	_, err = e.DeleteSession(s.ID)
	require.NoError(t, err)

	cur := e.CurrentRaceData()
	require.NotNil(t, cur)
	assert.Equal(t, s.ID, cur.SessionID)
	assert.True(t, cur.RaceActive)
}

func TestRecordCrossingBroadcasts(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	s, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	_, err = e.AddDriver(s.ID, "Alice", intPtr(3))
	require.NoError(t, err)
	rec.reset()

	e.RecordCrossing(s.ID, 3, nil)
	clock.Advance(61500 * time.Millisecond)
	e.RecordCrossing(s.ID, 3, nil)

	assert.Equal(t, []events.Type{
		events.TypeSessions, events.TypeLapRecorded,
		events.TypeSessions, events.TypeLapRecorded,
	}, rec.types())

	var lap models.LapRecord
	require.NoError(t, json.Unmarshal(rec.ofType(events.TypeLapRecorded)[1].Data, &lap))
	assert.Equal(t, 2, lap.LapNumber)
	require.NotNil(t, lap.LapTimeMs)
	assert.Equal(t, int64(61500), *lap.LapTimeMs)

	driver := lastSessions(t, rec)[0].Drivers[0]
	assert.Equal(t, 2, driver.CurrentLap)
	require.NotNil(t, driver.FastestLapMs)
	assert.Equal(t, int64(61500), *driver.FastestLapMs)

	rec.reset()
	e.RecordCrossing(s.ID, 8, nil)
	e.RecordCrossing(999, 3, nil)
	assert.Empty(t, rec.all())
}

func TestPushTimerTick(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	s, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	rec.reset()

	e.PushTimerTick(models.RaceTick{SessionID: s.ID, TimeLeft: 600, RaceActive: true, RaceMode: "safe"})

	got := ticks(t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Heat 1", got[0].SessionName)
	assert.Equal(t, models.RaceModeSafe, got[0].RaceMode)
	assert.Equal(t, 600, got[0].TimeLeft)

	clock.Advance(25 * time.Second)
	cur := e.CurrentRaceData()
	require.NotNil(t, cur)
	assert.Equal(t, 575, cur.TimeLeft)

	e.PushTimerTick(models.RaceTick{SessionID: s.ID, TimeLeft: -5, RaceActive: true, RaceMode: models.RaceModeSafe})
	e.PushTimerTick(models.RaceTick{SessionID: s.ID, TimeLeft: 5, RaceActive: true, RaceMode: "rainbow"})
	assert.Len(t, ticks(t, rec), 1, "invalid ticks are dropped")
}

func TestCurrentRaceDataNil(t *testing.T) {
	e, _, _ := newTestEngine(t)
	assert.Nil(t, e.CurrentRaceData())
	assert.Nil(t, e.RaceState())
}

func TestChangeMode(t *testing.T) {
	e, rec, _ := newTestEngine(t)

	e.ChangeMode(7, "hazard")
	e.ChangeMode(7, "purple")

	evs := rec.ofType(events.TypeRaceModeChange)
	require.Len(t, evs, 1)
	var p events.RaceModeChangePayload
	require.NoError(t, json.Unmarshal(evs[0].Data, &p))
	assert.Equal(t, models.RaceModeHazard, p.Mode)
	assert.Equal(t, models.SessionID(7), p.SessionID)
	assert.Empty(t, rec.ofType(events.TypeTimerUpdate))
}

func TestRaceStateFor(t *testing.T) {
	e, _, _ := newTestEngine(t)

	st := e.RaceStateFor(1)
	assert.False(t, st.Active)
	assert.Equal(t, models.RaceModeSafe, st.Mode)
	assert.Nil(t, st.StartTime)

	e.StartRace(1, 0)
	e.ChangeMode(1, models.RaceModeDanger)

	st = e.RaceStateFor(1)
	assert.True(t, st.Active)
	assert.Equal(t, models.RaceModeDanger, st.Mode)
	require.NotNil(t, st.StartTime)
	assert.True(t, st.StartTime.Equal(t0))

	other := e.RaceStateFor(2)
	assert.False(t, other.Active)
	assert.Equal(t, models.RaceModeDanger, other.Mode)
}

func waitTicks(t *testing.T, rec *recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(rec.ofType(events.TypeTimerUpdate)) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartRaceDrivesCountdownToCompletion(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	e.StartRace(3, 3*time.Second)
	require.True(t, e.CountdownRunning())
	assert.Equal(t, []events.Type{events.TypeRaceStarted, events.TypeTimerUpdate}, rec.types())

	for i := 2; i <= 4; i++ {
		clock.Advance(race.TickInterval)
		waitTicks(t, rec, i)
	}

	got := ticks(t, rec)
	require.Len(t, got, 4)
	assert.Equal(t, []int{3, 2, 1, 0}, []int{got[0].TimeLeft, got[1].TimeLeft, got[2].TimeLeft, got[3].TimeLeft})
	assert.False(t, got[3].RaceActive)

	require.Eventually(t, func() bool { return !e.CountdownRunning() }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.ofType(events.TypeRaceCompleted), 1)
}

func TestLiveTickStopsSimulatedCountdown(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	e.StartRace(3, 10*time.Minute)
	clock.Advance(race.TickInterval)
	waitTicks(t, rec, 2)

	e.PushTimerTick(models.RaceTick{SessionID: 3, TimeLeft: 500, RaceActive: true, RaceMode: models.RaceModeSafe})
	assert.False(t, e.CountdownRunning())
	waitTicks(t, rec, 3)

	clock.Advance(race.TickInterval)
	clock.Advance(race.TickInterval)
	time.Sleep(50 * time.Millisecond)

	got := ticks(t, rec)
	require.Len(t, got, 3, "no simulated ticks after a live tick")
	assert.Equal(t, 500, got[2].TimeLeft)
}

func TestModeChangeKeepsCountdown(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.StartRace(3, time.Minute)
	e.ChangeMode(3, models.RaceModeHazard)
	assert.True(t, e.CountdownRunning())

	e.StopRace(3)
	assert.False(t, e.CountdownRunning())
}

func TestStopAndCompleteRace(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	e.StartRace(3, 10*time.Minute)
	clock.Advance(90 * time.Second)
	waitTicks(t, rec, 2)

	e.StopRace(3)
	cur := e.CurrentRaceData()
	require.NotNil(t, cur)
	assert.False(t, cur.RaceActive)
	assert.Equal(t, 510, cur.TimeLeft)

	e.CompleteRace(3)
	cur = e.CurrentRaceData()
	assert.Equal(t, 0, cur.TimeLeft)

	assert.Len(t, rec.ofType(events.TypeRaceStopped), 1)
	assert.Len(t, rec.ofType(events.TypeRaceCompleted), 1)
}

func TestModeChangeFromOtherSessionKeepsRace(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	e.StartRace(1, time.Minute)
	e.ChangeMode(2, models.RaceModeHazard)

	assert.True(t, e.RaceStateFor(1).Active)
	assert.False(t, e.RaceStateFor(2).Active)
	assert.Equal(t, models.RaceModeHazard, e.RaceStateFor(2).Mode)
	assert.True(t, e.CountdownRunning())

	evs := rec.ofType(events.TypeRaceModeChange)
	require.Len(t, evs, 1)
	assert.Equal(t, "1", evs[0].SessionID)

	clock.Advance(race.TickInterval)
	waitTicks(t, rec, 2)
	got := ticks(t, rec)
	last := got[len(got)-1]
	assert.Equal(t, models.SessionID(1), last.SessionID)
	assert.Equal(t, models.RaceModeHazard, last.RaceMode)
	assert.Equal(t, 59, last.TimeLeft)
	assert.True(t, last.RaceActive)
}

func TestStopAndCompleteForOtherSessionIgnored(t *testing.T) {
	e, rec, clock := newTestEngine(t)

	e.StartRace(1, time.Minute)
	clock.Advance(10 * time.Second)
	rec.reset()

	e.StopRace(2)
	e.CompleteRace(2)

	assert.Empty(t, rec.all())
	assert.True(t, e.CountdownRunning())
	cur := e.CurrentRaceData()
	require.NotNil(t, cur)
	assert.Equal(t, models.SessionID(1), cur.SessionID)
	assert.True(t, cur.RaceActive)
	assert.Equal(t, 50, cur.TimeLeft)

	e.StopRace(1)
	assert.False(t, e.CountdownRunning())
	assert.Len(t, rec.ofType(events.TypeRaceStopped), 1)
}

func TestMalformedTickKeepsCountdown(t *testing.T) {
	e, rec, _ := newTestEngine(t)

	e.StartRace(1, time.Minute)
	require.True(t, e.CountdownRunning())
	rec.reset()

	e.PushTimerTick(models.RaceTick{SessionID: 1, TimeLeft: -1, RaceActive: true, RaceMode: models.RaceModeSafe})
	e.PushTimerTick(models.RaceTick{SessionID: 1, TimeLeft: 30, RaceActive: true, RaceMode: "rainbow"})

	assert.True(t, e.CountdownRunning())
	assert.Empty(t, rec.all())

	e.PushTimerTick(models.RaceTick{SessionID: 1, TimeLeft: 30, RaceActive: true, RaceMode: models.RaceModeSafe})
	assert.False(t, e.CountdownRunning())
	assert.Len(t, ticks(t, rec), 1)
}

func TestPersistenceRoundTrip(t *testing.T) {
	e, _, clock := newTestEngine(t)

	s, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)
	_, err = e.AddDriver(s.ID, "Alice", intPtr(2))
	require.NoError(t, err)
	e.RecordCrossing(s.ID, 2, nil)
	clock.Advance(65 * time.Second)
	e.RecordCrossing(s.ID, 2, nil)
	e.PushTimerTick(models.RaceTick{SessionID: s.ID, TimeLeft: 600, RaceActive: true, RaceMode: models.RaceModeHazard})
	deadline := clock.Now().Add(600 * time.Second)

	store, err := snapshot.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), e.Snapshot()))
	before, err := json.Marshal(e.ListSessions())
	require.NoError(t, err)

	restart := deadline.Add(-222 * time.Second)
	clock2 := clockwork.NewFakeClockAt(restart)
	rec2 := &recorder{}
	e2 := New(clock2, sessions.NewStore(), rec2)
	t.Cleanup(e2.Close)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	e2.Restore(doc)

	after, err := json.Marshal(e2.ListSessions())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.Equal(t, race.ResumeRunning, e2.Resume())
	assert.True(t, e2.CountdownRunning())

	cur := e2.CurrentRaceData()
	require.NotNil(t, cur)
	assert.True(t, cur.RaceActive)
	assert.Equal(t, 222, cur.TimeLeft)
	assert.Equal(t, models.RaceModeHazard, cur.RaceMode)

	got := ticks(t, rec2)
	require.Len(t, got, 1)
	assert.Equal(t, 222, got[0].TimeLeft)
}

func TestResumeAfterDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(time.Hour))
	rec := &recorder{}
	e := New(clock, sessions.NewStore(), rec)
	t.Cleanup(e.Close)

	e.Restore(&snapshot.Document{
		Version:  snapshot.CurrentVersion,
		Sessions: []models.Session{{ID: 1, Name: "Heat 1"}},
		Race: &models.RaceState{
			SessionID:   1,
			RaceActive:  true,
			RaceMode:    models.RaceModeSafe,
			TimeLeft:    300,
			EndDeadline: models.InstantPtr(t0.Add(5 * time.Minute)),
		},
	})

	assert.Equal(t, race.ResumeExpired, e.Resume())
	assert.False(t, e.CountdownRunning())

	cur := e.CurrentRaceData()
	require.NotNil(t, cur)
	assert.False(t, cur.RaceActive)
	assert.Equal(t, 0, cur.TimeLeft)
	assert.Len(t, ticks(t, rec), 1)
}

func TestWithSessions(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.CreateSession("Heat 1", nil)
	require.NoError(t, err)

	var got []models.Session
	e.WithSessions(func(list []models.Session) { got = list })
	require.Len(t, got, 1)
	assert.Equal(t, "Heat 1", got[0].Name)
}
