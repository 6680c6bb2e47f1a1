// Package detector contains the bark classifiers and the verdict
// smoothing state machine. Classification is a capability interface with
// two concrete scorers: a TFLite model and an energy heuristic. The
// scorer is selected once at startup; a model failure demotes the
// pipeline to the heuristic for the rest of the run.
package detector

import (
	"log/slog"
	"sync"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
)

// Result is the outcome of scoring one audio window.
type Result struct {
	Score  float64 // confidence in [0, 1]
	Source string  // event.SourceML or event.SourceHeuristic
}

// Classifier scores a window of mono float32 audio. Implementations must
// be callable repeatedly without retaining cross-call state other than the
// loaded model.
type Classifier interface {
	Score(samples []float32) (Result, error)
	Source() string
}

// Dispatcher routes windows to the active classifier and performs the
// one-time permanent demotion to the heuristic when the model fails.
type Dispatcher struct {
	mu       sync.Mutex
	active   Classifier
	fallback Classifier
	log      *slog.Logger
}

// NewDispatcher builds the classifier stack for the given settings and
// window length. When the model scorer is enabled but cannot be
// initialized, the heuristic takes over permanently; this is a logged
// degrade, not an error.
func NewDispatcher(settings *conf.DetectionSettings, windowSamples int, log *slog.Logger) *Dispatcher {
	heuristic := NewHeuristic(&settings.Heuristic, conf.SampleRate)
	d := &Dispatcher{active: heuristic, fallback: heuristic, log: log}

	if !settings.Model.Enabled {
		log.Info("model scorer disabled, using heuristic scorer")
		return d
	}

	model, err := NewYAMNet(&settings.Model, windowSamples)
	if err != nil {
		log.Warn("failed to initialize model scorer, falling back to heuristic",
			"error", err)
		return d
	}

	d.active = model
	log.Info("model scorer initialized", "model", settings.Model.Path)
	return d
}

// Score classifies one window. A scoring error from the model demotes the
// dispatcher to the heuristic for the lifetime of the process; the same
// window is then re-scored so the caller always gets a result.
func (d *Dispatcher) Score(samples []float32) Result {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()

	res, err := active.Score(samples)
	if err == nil {
		return res
	}

	d.mu.Lock()
	if d.active != d.fallback {
		d.log.Warn("model scorer failed, switching to heuristic permanently", "error", err)
		d.active = d.fallback
	}
	d.mu.Unlock()

	// The heuristic never fails.
	res, _ = d.fallback.Score(samples)
	return res
}

// Source returns the label of the currently active scorer.
func (d *Dispatcher) Source() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active.Source()
}

// UsingModel reports whether the model scorer is still active.
func (d *Dispatcher) UsingModel() bool {
	return d.Source() == event.SourceML
}
