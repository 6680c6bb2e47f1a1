package myaudio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/barkwatch/barkwatch/internal/conf"
)

// PCMToFloat32 converts little-endian signed 16-bit PCM to float32
// samples in [-1, 1).
func PCMToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Float32ToPCM converts float32 samples in [-1, 1] to little-endian
// signed 16-bit PCM, clipping out-of-range values.
func Float32ToPCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := math.Round(float64(sample) * 32767.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(int16(v)))
	}
	return pcm
}

// DurationToBytes converts an audio duration to a PCM byte count at the
// pipeline sample format.
func DurationToBytes(d time.Duration) int {
	samples := int(math.Round(d.Seconds() * float64(conf.SampleRate)))
	return samples * conf.BitDepth / 8 * conf.NumChannels
}

// BytesToDuration converts a PCM byte count at the pipeline sample format
// to the audio duration it spans.
func BytesToDuration(n int) time.Duration {
	samples := n / (conf.BitDepth / 8 * conf.NumChannels)
	return time.Duration(samples) * time.Second / conf.SampleRate
}
