// Package analysis wires the barkwatch pipeline together: audio capture,
// window scoring, verdict smoothing, clip capture and event publishing.
package analysis

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/detector"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/event"
	"github.com/barkwatch/barkwatch/internal/logging"
	"github.com/barkwatch/barkwatch/internal/myaudio"
	"github.com/barkwatch/barkwatch/internal/publisher"
	"github.com/barkwatch/barkwatch/internal/telemetry"
)

// RealtimeAnalysis runs the detection pipeline until a termination signal
// or a fatal device error. The scheduler goroutine owns the smoothing
// state; capture and publishing run in their own goroutines.
func RealtimeAnalysis(settings *conf.Settings) error {
	log := logging.ForService("analysis")

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryGeneric).
			Build()
	}

	log.Info("starting realtime bark detection",
		"source", settings.Audio.Source,
		"window", settings.Audio.WindowDuration,
		"hop", settings.Audio.HopDuration,
		"threshold", settings.Detection.Threshold,
		"dry_run", settings.Publish.DryRun)

	windowSamples := int(settings.Audio.WindowDuration.Seconds() * float64(conf.SampleRate))
	dispatcher := detector.NewDispatcher(&settings.Detection, windowSamples, logging.ForService("detector"))
	smoother := detector.NewSmoother(&settings.Smoothing)
	analysisBuf := myaudio.NewAnalysisBuffer(settings.Audio.WindowDuration, settings.Audio.HopDuration, metrics)
	captureBuf := myaudio.NewCaptureBuffer(&settings.Capture, metrics)

	pub := publisher.New(&settings.Publish, logging.ForService("publisher"), metrics)
	pub.Start()
	defer pub.Stop()

	if settings.Telemetry.Enabled {
		endpoint := telemetry.NewEndpoint(&settings.Telemetry, metrics)
		endpoint.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			endpoint.Stop(ctx)
		}()
	}

	quitChan := make(chan struct{})
	shutdown := sync.OnceFunc(func() { close(quitChan) })
	fatalChan := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go myaudio.CaptureAudio(settings, analysisBuf, captureBuf, metrics, &wg, quitChan, fatalChan)

	monitorSignals(shutdown, log)

	var fatalErr error
	ticker := time.NewTicker(settings.Audio.HopDuration)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-quitChan:
			break loop

		case err := <-fatalChan:
			log.Error("audio device failed permanently, shutting down", "error", err)
			fatalErr = err
			shutdown()
			break loop

		case <-ticker.C:
			processWindow(settings, analysisBuf, captureBuf, dispatcher, smoother, pub, metrics, log)
		}
	}

	wg.Wait()
	captureBuf.Close()
	log.Info("realtime bark detection stopped")
	return fatalErr
}

// processWindow scores one analysis window and runs the smoothing state
// machine on the verdict. Called at hop cadence by the scheduler.
func processWindow(settings *conf.Settings, analysisBuf *myaudio.AnalysisBuffer,
	captureBuf *myaudio.CaptureBuffer, dispatcher *detector.Dispatcher,
	smoother *detector.Smoother, pub *publisher.Publisher,
	metrics *telemetry.Metrics, log *slog.Logger) {

	win := analysisBuf.ReadWindow()
	if win == nil {
		return
	}

	res := dispatcher.Score(win.Samples())
	metrics.WindowsScored.WithLabelValues(res.Source).Inc()

	positive := res.Score >= settings.Detection.Threshold
	if settings.Debug {
		log.Debug("window scored", "score", res.Score,
			"source", res.Source, "positive", positive)
	}

	if !smoother.Update(positive, win.End) {
		return
	}
	metrics.EventsEmitted.Inc()

	e := event.New(res.Score, win.End, settings.DeviceID, res.Source)
	if settings.Capture.Enabled && !captureBuf.Disabled() {
		path, err := captureBuf.ScheduleClip(win.End, settings.DeviceID)
		if err != nil {
			log.Warn("failed to schedule capture clip", "error", err)
		} else {
			e.CapturePath = path
		}
	}

	log.Info("bark detected", "event_id", e.ID, "score", e.Score,
		"detector", e.Detector, "clip", e.CapturePath)
	pub.Publish(e)
}

// monitorSignals triggers shutdown on SIGINT or SIGTERM.
func monitorSignals(shutdown func(), log *slog.Logger) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig.String())
		shutdown()
	}()
}
