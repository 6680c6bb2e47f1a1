package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWirePayload(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := New(0.87, ts, "linux-mic-01", SourceML)
	ev.CapturePath = "/var/lib/barkwatch/clips/20250601_120000_linux-mic-01.wav"

	payload, err := ev.WirePayload()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "dog_bark", decoded["event"])
	assert.InDelta(t, 0.87, decoded["score"], 1e-9)
	assert.EqualValues(t, ts.Unix(), decoded["ts"])
	assert.Equal(t, "linux-mic-01", decoded["device_id"])
	assert.Equal(t, "ml", decoded["detector"])
	assert.Equal(t, ev.CapturePath, decoded["capture_path"])
}

func TestWirePayloadNullCapturePath(t *testing.T) {
	ev := New(0.42, time.Now(), "linux-mic-01", SourceHeuristic)

	payload, err := ev.WirePayload()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	val, present := decoded["capture_path"]
	assert.True(t, present, "capture_path must be present in the payload")
	assert.Nil(t, val, "capture_path must be null without a clip")
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(0.9, time.Now(), "dev", SourceML)
	b := New(0.9, time.Now(), "dev", SourceML)
	assert.NotEqual(t, a.ID, b.ID)
}
