// capture.go: continuous microphone capture through malgo (miniaudio).
// The capture callback feeds both the analysis buffer and the capture
// buffer and never blocks on downstream work.
package myaudio

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/logging"
	"github.com/barkwatch/barkwatch/internal/telemetry"
)

// captureSource holds information about a selected audio capture device.
type captureSource struct {
	Name string
	ID   string
	info malgo.DeviceInfo
}

// minimum time a device must run before a failure counts as a fresh
// outage rather than a continuation of the previous one
const deviceHealthyRuntime = 30 * time.Second

// CaptureAudio runs the capture loop until quitChan is closed. Device open
// failures and mid-run disconnects are retried a bounded number of times
// with doubling backoff; once retries are exhausted a device error is sent
// on fatalChan and the loop exits.
func CaptureAudio(settings *conf.Settings, ab *AnalysisBuffer, cb *CaptureBuffer,
	metrics *telemetry.Metrics, wg *sync.WaitGroup, quitChan chan struct{}, fatalChan chan<- error) {
	defer wg.Done()

	log := logging.ForService("myaudio")
	backoff := settings.Audio.DeviceRetryInitial
	attempts := 0

	for {
		select {
		case <-quitChan:
			return
		default:
		}

		runStart := time.Now()
		started, err := runCaptureDevice(settings, ab, cb, quitChan, log)
		if err == nil {
			// Clean shutdown requested.
			return
		}

		if shouldResetRetries(started, time.Since(runStart)) {
			attempts = 0
			backoff = settings.Audio.DeviceRetryInitial
		}

		attempts++
		if metrics != nil {
			metrics.DeviceRestarts.Inc()
		}
		if attempts > settings.Audio.DeviceRetryMax {
			fatalChan <- errors.New(err).
				Component("myaudio").
				Category(errors.CategoryAudioDevice).
				Context("attempts", attempts-1).
				Build()
			return
		}

		log.Warn("audio capture failed, retrying",
			"error", err, "attempt", attempts, "max", settings.Audio.DeviceRetryMax, "backoff", backoff)

		select {
		case <-quitChan:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// runCaptureDevice opens the capture device and runs it until quitChan is
// closed (returns nil) or the device stops unexpectedly (returns an error;
// started reports whether capture ever ran).
func runCaptureDevice(settings *conf.Settings, ab *AnalysisBuffer, cb *CaptureBuffer,
	quitChan chan struct{}, log *slog.Logger) (started bool, err error) {

	malgoCtx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return false, fmt.Errorf("audio context init failed: %w", err)
	}
	defer malgoCtx.Uninit() //nolint:errcheck

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return false, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	source, err := selectCaptureSource(settings.Audio.Source, infos)
	if err != nil {
		return false, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = conf.NumChannels
	deviceConfig.SampleRate = conf.SampleRate
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = source.info.ID.Pointer()

	stopChan := make(chan struct{}, 1)

	onReceiveFrames := func(_, pSamples []byte, _ uint32) {
		ab.Write(pSamples)
		cb.Write(pSamples)
	}

	onStopDevice := func() {
		select {
		case stopChan <- struct{}{}:
		default:
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onReceiveFrames,
		Stop: onStopDevice,
	})
	if err != nil {
		return false, fmt.Errorf("device init failed: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return false, fmt.Errorf("device start failed: %w", err)
	}
	defer device.Stop() //nolint:errcheck

	log.Info("listening on capture source", "name", source.Name, "id", source.ID)

	for {
		select {
		case <-quitChan:
			return true, nil
		case <-stopChan:
			// Drain spurious stop notifications fired by our own shutdown.
			select {
			case <-quitChan:
				return true, nil
			default:
			}
			return true, fmt.Errorf("capture device %q stopped unexpectedly", source.Name)
		}
	}
}

// shouldResetRetries reports whether a capture run was healthy enough to
// start the retry count over. A device that opens and stops again right
// away keeps consuming the remaining attempts, so a flapping device still
// exhausts its retries instead of looping forever.
func shouldResetRetries(started bool, ran time.Duration) bool {
	return started && ran >= deviceHealthyRuntime
}

// platformBackend picks the native audio backend for the host OS.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// selectCaptureSource finds the capture device matching the configured
// source name or ID substring.
func selectCaptureSource(audioSource string, infos []malgo.DeviceInfo) (captureSource, error) {
	for _, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}
		if matchesDeviceSettings(decodedID, info, audioSource) {
			return captureSource{Name: info.Name(), ID: decodedID, info: info}, nil
		}
	}
	return captureSource{}, fmt.Errorf("no suitable capture source found for device setting %q", audioSource)
}

// matchesDeviceSettings checks if the device matches the settings specified by the user.
func matchesDeviceSettings(decodedID string, info malgo.DeviceInfo, audioSource string) bool {
	if runtime.GOOS == "windows" && audioSource == "sysdefault" {
		// On Windows there is no "sysdefault" device, use the default device instead.
		return info.IsDefault == 1
	}
	return decodedID == audioSource || strings.Contains(info.Name(), audioSource)
}
