package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
)

func heuristicSettings() *conf.HeuristicSettings {
	return &conf.HeuristicSettings{
		RMSThreshold:  0.02,
		BandLowHz:     400,
		BandHighHz:    3000,
		BandEnergyMin: 1e-6,
	}
}

// sine generates one second of a sine wave at the given frequency and
// amplitude at the pipeline sample rate.
func sine(freq, amplitude float64) []float32 {
	samples := make([]float32, conf.SampleRate)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/conf.SampleRate))
	}
	return samples
}

func TestHeuristicSilenceScoresZero(t *testing.T) {
	h := NewHeuristic(heuristicSettings(), conf.SampleRate)

	res, err := h.Score(make([]float32, conf.SampleRate))
	require.NoError(t, err)
	assert.Equal(t, event.SourceHeuristic, res.Source)
	assert.Zero(t, res.Score)
}

func TestHeuristicInBandToneScoresHigh(t *testing.T) {
	h := NewHeuristic(heuristicSettings(), conf.SampleRate)

	// 1440 Hz sits on the band sweep grid, well inside the bark band.
	res, err := h.Score(sine(1440, 0.5))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Score, 0.9)
	assert.LessOrEqual(t, res.Score, 1.0)
}

func TestHeuristicPrefersBandEnergy(t *testing.T) {
	h := NewHeuristic(heuristicSettings(), conf.SampleRate)

	inBand, err := h.Score(sine(1440, 0.3))
	require.NoError(t, err)
	outOfBand, err := h.Score(sine(60, 0.3))
	require.NoError(t, err)

	assert.Greater(t, inBand.Score, outOfBand.Score)
}

func TestHeuristicScoreRange(t *testing.T) {
	h := NewHeuristic(heuristicSettings(), conf.SampleRate)

	// Even clipped full-scale input stays inside [0, 1].
	loud := make([]float32, conf.SampleRate)
	for i := range loud {
		loud[i] = 1.0
	}
	res, err := h.Score(loud)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 1.0)
}

func TestGoertzelPowerDetectsComponent(t *testing.T) {
	// A unit sine at 1 kHz has normalized power ~1 at its own frequency
	// and ~0 far away from it.
	signal := sine(1000, 1.0)

	atTone := goertzelPower(signal, conf.SampleRate, 1000)
	offTone := goertzelPower(signal, conf.SampleRate, 2500)

	assert.InDelta(t, 1.0, atTone, 0.05)
	assert.Less(t, offTone, 0.01)
}
