// capture_buffer.go: always-on rolling buffer of recent audio used to cut
// WAV clips around detected events. Fed continuously by the capture
// callback, independent of detection state.
package myaudio

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/logging"
	"github.com/barkwatch/barkwatch/internal/telemetry"
)

// pending clips waiting for the writer goroutine; more than one per
// cooldown interval never accumulates in practice
const finalizeQueueSize = 8

// clipJob collects the post-event margin before a clip is finalized.
// The pre-event audio is copied out of the ring when the job is scheduled.
type clipJob struct {
	pre        []byte
	postNeeded int
	collected  []byte
	path       string
}

func (j *clipJob) add(data []byte) {
	missing := j.postNeeded - len(j.collected)
	if missing <= 0 {
		return
	}
	if len(data) > missing {
		data = data[:missing]
	}
	j.collected = append(j.collected, data...)
}

func (j *clipJob) ready() bool {
	return len(j.collected) >= j.postNeeded
}

func (j *clipJob) audio() []byte {
	out := make([]byte, 0, len(j.pre)+len(j.collected))
	out = append(out, j.pre...)
	return append(out, j.collected...)
}

// CaptureBuffer is a fixed-capacity ring of recent PCM audio with a
// monotonically advancing write cursor. Readers compute ranges from the
// total bytes written, never from raw slot positions. Completed clips are
// handed to a writer goroutine; the capture path itself never touches the
// disk.
type CaptureBuffer struct {
	mu           sync.Mutex
	data         []byte
	writeIndex   int
	totalWritten int64
	settings     conf.CaptureSettings
	disabled     bool
	closed       bool
	jobs         []*clipJob
	finalize     chan *clipJob
	done         chan struct{}
	closeOnce    sync.Once
	log          *slog.Logger
	metrics      *telemetry.Metrics
}

// NewCaptureBuffer creates the rolling capture buffer, checks the clip
// output directory and starts the clip writer goroutine. An unwritable
// directory disables clip export for the whole run; the buffer itself
// keeps working so detection is unaffected.
func NewCaptureBuffer(settings *conf.CaptureSettings, metrics *telemetry.Metrics) *CaptureBuffer {
	cb := &CaptureBuffer{
		data:     make([]byte, DurationToBytes(settings.BufferDuration)),
		settings: *settings,
		finalize: make(chan *clipJob, finalizeQueueSize),
		done:     make(chan struct{}),
		log:      logging.ForService("capture"),
		metrics:  metrics,
	}

	if settings.Enabled {
		if err := os.MkdirAll(settings.Path, 0o755); err != nil {
			cb.log.Error("capture directory is not writable, disabling clip export",
				"path", settings.Path, "error", err)
			cb.disabled = true
		}
	}

	go cb.finalizeLoop()
	return cb
}

// Write appends captured PCM to the ring, overwriting the oldest audio
// once the buffer is full, and feeds any clip jobs still collecting their
// post-event margin. Called from the capture callback: it only copies
// memory, completed clips are finalized by the writer goroutine.
func (cb *CaptureBuffer) Write(data []byte) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	remaining := data
	for len(remaining) > 0 {
		n := copy(cb.data[cb.writeIndex:], remaining)
		cb.writeIndex = (cb.writeIndex + n) % len(cb.data)
		remaining = remaining[n:]
	}
	cb.totalWritten += int64(len(data))

	cb.feedJobs(data)
}

// feedJobs distributes fresh audio to pending clip jobs and hands the ones
// with a complete post margin to the writer goroutine. Caller holds the
// lock.
func (cb *CaptureBuffer) feedJobs(data []byte) {
	if cb.disabled || !cb.settings.Enabled {
		return
	}

	pending := cb.jobs[:0]
	for _, job := range cb.jobs {
		job.add(data)
		if !job.ready() {
			pending = append(pending, job)
			continue
		}
		cb.enqueueFinalize(job)
	}
	cb.jobs = pending
}

// enqueueFinalize hands a completed job to the writer goroutine without
// blocking. Caller holds the lock.
func (cb *CaptureBuffer) enqueueFinalize(job *clipJob) {
	if cb.closed {
		return
	}
	select {
	case cb.finalize <- job:
	default:
		if cb.metrics != nil {
			cb.metrics.ClipWriteErrors.Inc()
		}
		cb.log.Warn("clip writer is behind, discarding clip", "path", job.path)
	}
}

// finalizeLoop writes completed clips to disk, one at a time.
func (cb *CaptureBuffer) finalizeLoop() {
	defer close(cb.done)
	for job := range cb.finalize {
		cb.finalizeJob(job)
	}
}

func (cb *CaptureBuffer) finalizeJob(job *clipJob) {
	cb.mu.Lock()
	disabled := cb.disabled
	cb.mu.Unlock()
	if disabled {
		return
	}

	if err := SavePCMDataToWAV(job.path, job.audio()); err != nil {
		// First write failure permanently disables clip export.
		cb.mu.Lock()
		cb.disabled = true
		cb.mu.Unlock()
		if cb.metrics != nil {
			cb.metrics.ClipWriteErrors.Inc()
		}
		cb.log.Error("failed to write capture clip, disabling clip export",
			"path", job.path, "error", err)
		return
	}
	if cb.metrics != nil {
		cb.metrics.ClipsWritten.Inc()
	}
	cb.log.Info("saved capture clip", "path", job.path)
}

// recent returns up to n bytes of the most recent audio. Caller holds the lock.
func (cb *CaptureBuffer) recent(n int) []byte {
	if int64(n) > cb.totalWritten {
		n = int(cb.totalWritten)
	}
	if n > len(cb.data) {
		n = len(cb.data)
	}
	// Keep sample alignment after clamping.
	n -= n % (conf.BitDepth / 8)
	if n <= 0 {
		return nil
	}

	out := make([]byte, n)
	start := cb.writeIndex - n
	if start >= 0 {
		copy(out, cb.data[start:cb.writeIndex])
		return out
	}
	first := copy(out, cb.data[len(cb.data)+start:])
	copy(out[first:], cb.data[:cb.writeIndex])
	return out
}

// ScheduleClip starts a clip spanning the configured pre/post margins
// around an event. The pre-event part is clamped to whatever history the
// ring actually holds. Returns the clip path; the WAV file appears once
// the post margin has been collected from subsequent writes and the
// writer goroutine has flushed it. Returns an empty path when clip export
// is disabled.
func (cb *CaptureBuffer) ScheduleClip(eventTime time.Time, deviceID string) (string, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.disabled || !cb.settings.Enabled {
		return "", nil
	}

	pre := cb.recent(DurationToBytes(cb.settings.PreMargin))
	postNeeded := DurationToBytes(cb.settings.PostMargin)
	if len(pre) == 0 && postNeeded == 0 {
		return "", errors.Newf("clip margins produce no audio").
			Component("capture").
			Category(errors.CategoryCaptureWrite).
			Build()
	}

	filename := eventTime.Format("20060102_150405") + "_" + deviceID + ".wav"
	path := filepath.Join(cb.settings.Path, filename)

	job := &clipJob{pre: pre, postNeeded: postNeeded, path: path}
	if job.ready() {
		cb.enqueueFinalize(job)
	} else {
		cb.jobs = append(cb.jobs, job)
	}
	return path, nil
}

// Close stops the clip writer after it has flushed the clips already
// handed to it. Further completed clips are discarded. Safe to call more
// than once.
func (cb *CaptureBuffer) Close() {
	cb.closeOnce.Do(func() {
		cb.mu.Lock()
		cb.closed = true
		cb.mu.Unlock()
		close(cb.finalize)
		<-cb.done
	})
}

// Disabled reports whether clip export has been turned off for this run.
func (cb *CaptureBuffer) Disabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.disabled || !cb.settings.Enabled
}

// BufferedDuration returns how much audio the ring currently holds.
func (cb *CaptureBuffer) BufferedDuration() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	bytes := cb.totalWritten
	if bytes > int64(len(cb.data)) {
		bytes = int64(len(cb.data))
	}
	return BytesToDuration(int(bytes))
}
