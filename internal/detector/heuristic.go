// heuristic.go: energy-based fallback scorer. Combines overall RMS with
// energy in the bark frequency band into a [0, 1] confidence using fixed
// thresholds from the configuration.
package detector

import (
	"math"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
)

// number of evaluation frequencies spread across the bark band
const bandSweepSteps = 16

// Heuristic scores windows from signal energy alone. It carries no state
// between calls and never fails, which makes it the terminal fallback.
type Heuristic struct {
	settings   conf.HeuristicSettings
	sampleRate int
}

// NewHeuristic creates a heuristic scorer for the given sample rate.
func NewHeuristic(settings *conf.HeuristicSettings, sampleRate int) *Heuristic {
	return &Heuristic{settings: *settings, sampleRate: sampleRate}
}

// Score computes the heuristic bark confidence for a window.
//
// rmsRatio maps the overall loudness relative to the RMS threshold into
// [0, 1] with the threshold itself sitting at 0.5; bandRatio relates the
// in-band energy to the configured minimum. The weighted sum keeps the
// score source-compatible with the model scorer's [0, 1] range.
func (h *Heuristic) Score(samples []float32) (Result, error) {
	rms := rootMeanSquare(samples)
	band := h.bandEnergy(samples)

	rmsThreshold := math.Max(h.settings.RMSThreshold, 1e-8)
	rmsRatio := clamp((rms-h.settings.RMSThreshold)/rmsThreshold+0.5, 0, 1)

	bandRatio := clamp(band/math.Max(h.settings.BandEnergyMin, 1e-12), 0, 1.5)

	score := clamp(0.6*rmsRatio+0.4*math.Min(bandRatio, 1.0), 0, 1)
	return Result{Score: score, Source: event.SourceHeuristic}, nil
}

// Source returns the heuristic source label.
func (h *Heuristic) Source() string {
	return event.SourceHeuristic
}

// bandEnergy estimates the mean squared amplitude of components inside
// the bark band, evaluated at a sweep of frequencies with the Goertzel
// kernel.
func (h *Heuristic) bandEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	low := h.settings.BandLowHz
	high := h.settings.BandHighHz
	step := (high - low) / float64(bandSweepSteps-1)

	var total float64
	for i := 0; i < bandSweepSteps; i++ {
		total += goertzelPower(samples, h.sampleRate, low+float64(i)*step)
	}
	return total / float64(bandSweepSteps)
}

// goertzelPower returns the squared amplitude of the signal component at
// the given frequency, normalized so a full-scale sine yields 1.0.
func goertzelPower(samples []float32, sampleRate int, freq float64) float64 {
	n := len(samples)
	omega := 2 * math.Pi * freq / float64(sampleRate)
	coeff := 2 * math.Cos(omega)

	var s1, s2 float64
	for _, sample := range samples {
		s0 := float64(sample) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2
	half := float64(n) / 2
	return power / (half * half)
}

func rootMeanSquare(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
