package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/racetrack/go/internal/access"
	"github.com/mcdev12/racetrack/go/internal/config"
	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/snapshot"
)

func TestSetupServicesPersistsRaceExpiredWhileOffline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "racetrack.json")

	store, err := snapshot.NewFileStore(path)
	require.NoError(t, err)

	started := models.NewInstant(time.Now().Add(-20 * time.Minute))
	deadline := models.NewInstant(time.Now().Add(-10 * time.Minute))
	require.NoError(t, store.Save(ctx, &snapshot.Document{
		Version:  snapshot.CurrentVersion,
		SavedAt:  deadline,
		Sessions: []models.Session{},
		Race: &models.RaceState{
			SessionID:   5,
			SessionName: "Heat 5",
			RaceActive:  true,
			RaceMode:    models.RaceModeSafe,
			TimeLeft:    60,
			EndDeadline: &deadline,
			StartedAt:   &started,
			LastUpdated: deadline,
		},
	}))

	cfg := config.Default()
	cfg.Keys = access.Keys{Receptionist: "front", Observer: "laps", Safety: "flags"}
	cfg.Persist.Enabled = true
	cfg.Persist.Backend = config.BackendFile
	cfg.Persist.Path = path
	cfg.Persist.Debounce = 10 * time.Millisecond

	svc, err := setupServices(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(context.Background()) })

	assert.False(t, svc.Engine.CountdownRunning())

	require.Eventually(t, func() bool {
		doc, err := store.Load(ctx)
		if err != nil || doc == nil || doc.Race == nil {
			return false
		}
		return !doc.Race.RaceActive && doc.Race.TimeLeft == 0
	}, 2*time.Second, 10*time.Millisecond, "expired race is written back without any further event")
}
