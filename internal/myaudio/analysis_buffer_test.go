package myaudio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkwatch/barkwatch/internal/conf"
)

const bytesPerSecond = conf.SampleRate * conf.BitDepth / 8

// pcmRamp produces n bytes of PCM with a recognizable incrementing sample
// pattern starting at seed, used to verify ordering across buffer seams.
func pcmRamp(n int, seed int16) []byte {
	samples := make([]float32, n/2)
	v := seed
	for i := range samples {
		samples[i] = float32(v) / 32768.0
		v++
	}
	return Float32ToPCM(samples)
}

func TestReadWindowWarmup(t *testing.T) {
	ab := NewAnalysisBuffer(time.Second, 500*time.Millisecond, nil)

	// Less than a full window buffered: no window, no error.
	ab.Write(pcmRamp(bytesPerSecond/2, 0))
	assert.Nil(t, ab.ReadWindow())

	// Completing the first window makes it available.
	ab.Write(pcmRamp(bytesPerSecond/2, 0))
	win := ab.ReadWindow()
	require.NotNil(t, win)
	assert.Len(t, win.PCM, bytesPerSecond)
}

func TestReadWindowOverlap(t *testing.T) {
	ab := NewAnalysisBuffer(time.Second, 500*time.Millisecond, nil)

	// Two seconds of a continuous ramp yields three overlapping windows.
	ab.Write(pcmRamp(2*bytesPerSecond, 0))

	first := ab.ReadWindow()
	require.NotNil(t, first)
	second := ab.ReadWindow()
	require.NotNil(t, second)

	// The second half of window one must equal the first half of window two.
	half := bytesPerSecond / 2
	assert.Equal(t, first.PCM[half:], second.PCM[:half])

	third := ab.ReadWindow()
	require.NotNil(t, third)
	assert.Equal(t, second.PCM[half:], third.PCM[:half])

	// Only half a hop left now.
	assert.Nil(t, ab.ReadWindow())
}

func TestWindowTimestampsFollowStreamPosition(t *testing.T) {
	ab := NewAnalysisBuffer(time.Second, 500*time.Millisecond, nil)

	// Two seconds buffered: the first window ends one second before the
	// last written sample, regardless of when the scheduler reads it.
	ab.Write(pcmRamp(2*bytesPerSecond, 0))
	written := time.Now()

	first := ab.ReadWindow()
	require.NotNil(t, first)
	assert.WithinDuration(t, written.Add(-time.Second), first.End, 100*time.Millisecond)
	assert.Equal(t, first.End.Add(-time.Second), first.Start)

	// Without new writes, consecutive windows advance by exactly one hop.
	second := ab.ReadWindow()
	require.NotNil(t, second)
	assert.Equal(t, 500*time.Millisecond, second.End.Sub(first.End))
}

func TestWindowTimestampsHonestAfterOverrun(t *testing.T) {
	ab := NewAnalysisBuffer(time.Second, 500*time.Millisecond, nil)

	// Overfill the ring so the oldest audio is dropped. The next window
	// must be labeled by its position in the surviving stream, not by the
	// wall clock of the read.
	for i := 0; i < analysisBufferWindows+4; i++ {
		ab.Write(pcmRamp(bytesPerSecond, int16(i)))
	}
	written := time.Now()
	require.Positive(t, ab.Overruns())

	win := ab.ReadWindow()
	require.NotNil(t, win)

	// The ring holds exactly its capacity; the first window ends capacity
	// minus one second behind the last write.
	behind := time.Duration(analysisBufferWindows-1) * time.Second
	assert.WithinDuration(t, written.Add(-behind), win.End, 100*time.Millisecond)
}

func TestWriteNeverBlocksOnFullBuffer(t *testing.T) {
	ab := NewAnalysisBuffer(time.Second, 500*time.Millisecond, nil)

	// Write far more than the ring can hold; the capture path must keep
	// accepting data and count overruns instead of blocking.
	for i := 0; i < analysisBufferWindows*3; i++ {
		ab.Write(pcmRamp(bytesPerSecond, int16(i)))
	}

	assert.Positive(t, ab.Overruns())

	// The buffer must still produce valid windows afterwards.
	win := ab.ReadWindow()
	require.NotNil(t, win)
	assert.Len(t, win.PCM, bytesPerSecond)
}

func TestSamplesConversionRoundTrip(t *testing.T) {
	orig := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.99}
	pcm := Float32ToPCM(orig)
	back := PCMToFloat32(pcm)

	require.Len(t, back, len(orig))
	for i := range orig {
		assert.InDelta(t, orig[i], back[i], 1.0/32768.0)
	}
}
