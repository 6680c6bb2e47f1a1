package detector

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
)

// failingClassifier simulates a model scorer whose interpreter breaks at
// runtime, counting how often it is still consulted.
type failingClassifier struct {
	calls int
}

func (f *failingClassifier) Score(_ []float32) (Result, error) {
	f.calls++
	return Result{}, errors.New("interpreter invoke failed")
}

func (f *failingClassifier) Source() string { return event.SourceML }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDemotesOnModelFailure(t *testing.T) {
	broken := &failingClassifier{}
	d := &Dispatcher{
		active:   broken,
		fallback: NewHeuristic(heuristicSettings(), conf.SampleRate),
		log:      discardLogger(),
	}

	assert.True(t, d.UsingModel())

	// The failing window is re-scored by the heuristic so the caller
	// still receives a usable result.
	res := d.Score(sine(1440, 0.5))
	assert.Equal(t, event.SourceHeuristic, res.Source)
	assert.GreaterOrEqual(t, res.Score, 0.9)
	assert.False(t, d.UsingModel())

	// Demotion is permanent: the model is never consulted again.
	for range 3 {
		res = d.Score(sine(1440, 0.5))
		assert.Equal(t, event.SourceHeuristic, res.Source)
	}
	assert.Equal(t, 1, broken.calls)
}

func TestDispatcherDisabledModelUsesHeuristic(t *testing.T) {
	settings := &conf.DetectionSettings{
		Threshold: 0.5,
		Model:     conf.ModelSettings{Enabled: false},
		Heuristic: *heuristicSettings(),
	}

	d := NewDispatcher(settings, conf.SampleRate, discardLogger())
	assert.False(t, d.UsingModel())
	assert.Equal(t, event.SourceHeuristic, d.Source())
}

func TestDispatcherMissingModelFallsBack(t *testing.T) {
	settings := &conf.DetectionSettings{
		Threshold: 0.5,
		Model: conf.ModelSettings{
			Enabled:      true,
			Path:         "/nonexistent/yamnet.tflite",
			ClassMapPath: "/nonexistent/class_map.csv",
		},
		Heuristic: *heuristicSettings(),
	}

	d := NewDispatcher(settings, conf.SampleRate, discardLogger())
	assert.False(t, d.UsingModel())

	res := d.Score(sine(1440, 0.5))
	assert.Equal(t, event.SourceHeuristic, res.Source)
}
