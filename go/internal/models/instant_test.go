package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestInstantJSON(t *testing.T) {
	at := time.Date(2024, 6, 1, 18, 0, 0, 123456789, time.UTC)
	in := NewInstant(at)

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, "1717264800123", string(raw))

	tests := []struct {
		name  string
		input string
	}{
		{"number", `1717264800123`},
		{"numeric string", `"1717264800123"`},
		{"rfc3339", `"2024-06-01T18:00:00.123Z"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out Instant
			require.NoError(t, json.Unmarshal([]byte(tt.input), &out))
			assert.Equal(t, in, out)
		})
	}

	var bad Instant
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}

func TestInstantMsgpack(t *testing.T) {
	in := InstantPtr(time.Date(2024, 6, 1, 18, 0, 0, 5e6, time.UTC))
	state := RaceState{SessionID: 9, RaceMode: RaceModeSafe, EndDeadline: in, LastUpdated: *in}

	raw, err := msgpack.Marshal(state)
	require.NoError(t, err)

	var out RaceState
	require.NoError(t, msgpack.Unmarshal(raw, &out))
	assert.Equal(t, state, out)
	assert.Nil(t, out.StartedAt)
}

func TestParseSessionID(t *testing.T) {
	id, err := ParseSessionID("1717264800123")
	require.NoError(t, err)
	assert.Equal(t, SessionID(1717264800123), id)

	var fromString struct {
		ID SessionID `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"sessionId":"42"}`), &fromString))
	assert.Equal(t, SessionID(42), fromString.ID)

	_, err = ParseSessionID("heat")
	assert.Error(t, err)
}

func TestParseRaceMode(t *testing.T) {
	m, err := ParseRaceMode(" hazard ")
	require.NoError(t, err)
	assert.Equal(t, RaceModeHazard, m)

	_, err = ParseRaceMode("green")
	assert.Error(t, err)
}
