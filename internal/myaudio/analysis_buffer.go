// analysis_buffer.go: ring buffer between the capture callback and the
// window scheduler. The capture side never blocks; when the buffer is full
// the oldest audio is dropped and the overrun is counted.
package myaudio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/barkwatch/barkwatch/internal/telemetry"
)

// ring capacity in windows, headroom for a slow scheduler tick
const analysisBufferWindows = 8

// Window is a fixed-duration slice of captured audio handed to the
// classifier. Immutable once produced.
type Window struct {
	PCM   []byte    // S16LE mono PCM
	Start time.Time // timestamp of the first sample
	End   time.Time // timestamp just past the last sample
}

// Samples returns the window audio as float32 samples.
func (w *Window) Samples() []float32 {
	return PCMToFloat32(w.PCM)
}

// AnalysisBuffer accumulates captured PCM and yields overlapping
// fixed-duration windows at the hop cadence.
type AnalysisBuffer struct {
	mu          sync.Mutex
	rb          *ringbuffer.RingBuffer
	pending     []byte // tail carried between windows for the overlap
	windowBytes int
	hopBytes    int
	windowDur   time.Duration
	lastWrite   time.Time // wall-clock time of the most recent write
	overruns    atomic.Uint64
	metrics     *telemetry.Metrics
}

// NewAnalysisBuffer creates an analysis buffer for the given window and
// hop durations. metrics may be nil.
func NewAnalysisBuffer(windowDur, hopDur time.Duration, metrics *telemetry.Metrics) *AnalysisBuffer {
	windowBytes := DurationToBytes(windowDur)
	return &AnalysisBuffer{
		rb:          ringbuffer.New(windowBytes * analysisBufferWindows),
		windowBytes: windowBytes,
		hopBytes:    DurationToBytes(hopDur),
		windowDur:   windowDur,
		metrics:     metrics,
	}
}

// Write appends captured PCM data. Called from the capture callback, so it
// must not block: when the ring is full the oldest audio is discarded.
func (ab *AnalysisBuffer) Write(data []byte) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if free := ab.rb.Free(); free < len(data) {
		discard := make([]byte, len(data)-free)
		_, _ = ab.rb.Read(discard)
		ab.overruns.Add(1)
		if ab.metrics != nil {
			ab.metrics.CaptureOverruns.Inc()
		}
	}
	_, _ = ab.rb.Write(data)
	ab.lastWrite = time.Now()
}

// ReadWindow returns the next analysis window, or nil while the buffer is
// still warming up (no full window accumulated yet). Consecutive windows
// overlap by the window duration minus the hop. Timestamps are derived
// from the stream position, not the caller's clock: the window's end is
// the last write time minus the audio still queued behind it, so labels
// stay honest after overruns or a scheduler backlog.
func (ab *AnalysisBuffer) ReadWindow() *Window {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	need := ab.windowBytes - len(ab.pending)
	if need < ab.hopBytes {
		need = ab.hopBytes
	}
	if ab.rb.Length() < need {
		return nil
	}

	chunk := make([]byte, need)
	if _, err := ab.rb.Read(chunk); err != nil {
		return nil
	}
	ab.pending = append(ab.pending, chunk...)

	pcm := make([]byte, ab.windowBytes)
	copy(pcm, ab.pending[:ab.windowBytes])

	// Keep the overlap tail for the next window.
	tail := make([]byte, len(ab.pending)-ab.hopBytes)
	copy(tail, ab.pending[ab.hopBytes:])
	ab.pending = tail

	end := ab.lastWrite.Add(-BytesToDuration(ab.rb.Length()))
	return &Window{
		PCM:   pcm,
		Start: end.Add(-ab.windowDur),
		End:   end,
	}
}

// Overruns returns the number of times the capture side had to drop the
// oldest audio because the scheduler fell behind.
func (ab *AnalysisBuffer) Overruns() uint64 {
	return ab.overruns.Load()
}
