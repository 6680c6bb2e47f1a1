// Package event defines the bark event emitted by the detection pipeline
// and its wire representation for downstream sinks.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/barkwatch/barkwatch/internal/conf"
)

// Detector source labels carried on emitted events.
const (
	SourceML        = "ml"
	SourceHeuristic = "heuristic"
)

// BarkEvent is a single detected bark. Immutable once created, except for
// CapturePath which the capture stage fills in before publishing.
type BarkEvent struct {
	ID          string    // unique event ID
	Type        string    // event type, conf.EventType
	Score       float64   // classification score in [0, 1]
	Time        time.Time // event timestamp
	DeviceID    string    // identifier of the capturing device
	Detector    string    // "ml" or "heuristic"
	CapturePath string    // path of the exported clip, empty when capture is unavailable
}

// New creates a BarkEvent for a positive smoothing transition.
func New(score float64, ts time.Time, deviceID, detector string) *BarkEvent {
	return &BarkEvent{
		ID:       uuid.NewString(),
		Type:     conf.EventType,
		Score:    score,
		Time:     ts,
		DeviceID: deviceID,
		Detector: detector,
	}
}

// wireEvent is the sink payload schema. Sink-specific envelope fields are
// appended by the sink adapters, not here.
type wireEvent struct {
	Event       string  `json:"event"`
	Score       float64 `json:"score"`
	TS          int64   `json:"ts"`
	DeviceID    string  `json:"device_id"`
	Detector    string  `json:"detector"`
	CapturePath *string `json:"capture_path"`
}

// WirePayload marshals the event into the sink payload schema.
// capture_path is null when no clip was exported.
func (e *BarkEvent) WirePayload() ([]byte, error) {
	w := wireEvent{
		Event:    e.Type,
		Score:    e.Score,
		TS:       e.Time.Unix(),
		DeviceID: e.DeviceID,
		Detector: e.Detector,
	}
	if e.CapturePath != "" {
		w.CapturePath = &e.CapturePath
	}
	return json.Marshal(w)
}
