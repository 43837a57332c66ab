package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/racetrack/go/internal/dbconfig"
	"github.com/mcdev12/racetrack/go/internal/models"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func sampleDocument() *Document {
	fastest := int64(59500)
	return &Document{
		Version: CurrentVersion,
		SavedAt: models.NewInstant(t0),
		Sessions: []models.Session{
			{
				ID:   1717264800000,
				Name: "Heat 1",
				Drivers: []models.Driver{
					{Name: "Alice", CarNumber: 5, FastestLapMs: &fastest, CurrentLap: 3, LastLapCrossingTimestamp: models.InstantPtr(t0.Add(2 * time.Minute))},
					{Name: "Bob", CarNumber: 1},
				},
			},
			{ID: 1717264900000, Name: "Heat 2", Drivers: []models.Driver{}},
		},
		Race: &models.RaceState{
			SessionID:   1717264800000,
			SessionName: "Heat 1",
			RaceActive:  true,
			RaceMode:    models.RaceModeHazard,
			TimeLeft:    420,
			EndDeadline: models.InstantPtr(t0.Add(7 * time.Minute)),
			StartedAt:   models.InstantPtr(t0.Add(-3 * time.Minute)),
			LastUpdated: models.NewInstant(t0),
		},
	}
}

func assertRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	doc := sampleDocument()
	require.NoError(t, store.Save(ctx, doc))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	want, err := json.Marshal(doc.Sessions)
	require.NoError(t, err)
	got, err := json.Marshal(loaded.Sessions)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Equal(t, doc.Race, loaded.Race)
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "data", "state.json"))
	require.NoError(t, err)
	assertRoundTrip(t, store)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"sessions":[]}`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	assert.Error(t, err)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger("")
	require.NoError(t, err)
	defer store.Close()

	assertRoundTrip(t, store)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	if os.Getenv("RACETRACK_TEST_POSTGRES") == "" {
		t.Skip("RACETRACK_TEST_POSTGRES not set")
	}

	cfg := dbconfig.Default()
	cfg.ApplyEnv()
	db, err := cfg.Open()
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, `DROP TABLE IF EXISTS racetrack_snapshot`)

	store, err := NewPostgresStore(ctx, db)
	require.NoError(t, err)
	defer store.Close()

	assertRoundTrip(t, store)
}

type memoryStore struct {
	mu    sync.Mutex
	saves int
	last  *Document
}

func (m *memoryStore) Load(context.Context) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memoryStore) Save(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = doc
	return nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestSaverDebounces(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := &memoryStore{}

	var mu sync.Mutex
	name := "first"
	source := func() *Document {
		mu.Lock()
		defer mu.Unlock()
		return &Document{Sessions: []models.Session{{ID: 1, Name: name}}}
	}

	saver := NewSaver(clock, store, source, 200*time.Millisecond)
	for i := 0; i < 5; i++ {
		saver.Schedule()
	}
	mu.Lock()
	name = "latest"
	mu.Unlock()

	clock.Advance(199 * time.Millisecond)
	assert.Equal(t, 0, store.count())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)

	doc, _ := store.Load(context.Background())
	assert.Equal(t, "latest", doc.Sessions[0].Name)
	assert.Equal(t, CurrentVersion, doc.Version)

	saver.Schedule()
	saver.Schedule()
	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, store.count())
}

func TestSaverFlush(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := &memoryStore{}
	saver := NewSaver(clock, store, func() *Document { return &Document{} }, 0)

	saver.Schedule()
	require.NoError(t, saver.Flush(context.Background()))
	assert.Equal(t, 1, store.count())

	clock.Advance(DefaultDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, store.count())
}
