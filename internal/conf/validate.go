// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/barkwatch/barkwatch/internal/errors"
)

// ValidationError represents a collection of validation errors. Each entry
// names the offending field so a bad configuration is actionable.
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Any error is
// fatal at startup, the pipeline must not start with inconsistent settings.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateAudioSettings,
		validateDetectionSettings,
		validateSmoothingSettings,
		validateCaptureSettings,
		validatePublishSettings,
		validateTelemetrySettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if settings.DeviceID == "" {
		ve.Errors = append(ve.Errors, "deviceid: must not be empty")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateAudioSettings(s *Settings) []string {
	var errs []string
	a := &s.Audio
	if a.WindowDuration <= 0 {
		errs = append(errs, "audio.windowduration: must be positive")
	}
	if a.HopDuration <= 0 {
		errs = append(errs, "audio.hopduration: must be positive")
	}
	if a.HopDuration > a.WindowDuration {
		errs = append(errs, "audio.hopduration: must not exceed audio.windowduration")
	}
	if a.DeviceRetryMax < 0 {
		errs = append(errs, "audio.deviceretrymax: must not be negative")
	}
	return errs
}

func validateDetectionSettings(s *Settings) []string {
	var errs []string
	d := &s.Detection
	if d.Threshold < 0 || d.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("detection.threshold: %v is outside [0, 1]", d.Threshold))
	}
	if d.Model.Enabled {
		if d.Model.Path == "" {
			errs = append(errs, "detection.model.path: must be set when the model scorer is enabled")
		}
		if d.Model.ClassMapPath == "" {
			errs = append(errs, "detection.model.classmappath: must be set when the model scorer is enabled")
		}
	}
	h := &d.Heuristic
	if h.RMSThreshold <= 0 {
		errs = append(errs, "detection.heuristic.rmsthreshold: must be positive")
	}
	if h.BandLowHz <= 0 || h.BandHighHz <= h.BandLowHz {
		errs = append(errs, "detection.heuristic.bandlowhz/bandhighhz: band must satisfy 0 < low < high")
	}
	if h.BandHighHz > SampleRate/2 {
		errs = append(errs, fmt.Sprintf("detection.heuristic.bandhighhz: %v exceeds the Nyquist frequency %d", h.BandHighHz, SampleRate/2))
	}
	if h.BandEnergyMin <= 0 {
		errs = append(errs, "detection.heuristic.bandenergymin: must be positive")
	}
	return errs
}

func validateSmoothingSettings(s *Settings) []string {
	var errs []string
	sm := &s.Smoothing
	if sm.HistoryLength <= 0 {
		errs = append(errs, "smoothing.historylength: must be positive")
	}
	if sm.PositivesRequired <= 0 {
		errs = append(errs, "smoothing.positivesrequired: must be positive")
	}
	if sm.PositivesRequired > sm.HistoryLength {
		errs = append(errs, "smoothing.positivesrequired: must not exceed smoothing.historylength")
	}
	if sm.Cooldown < 0 {
		errs = append(errs, "smoothing.cooldown: must not be negative")
	}
	return errs
}

func validateCaptureSettings(s *Settings) []string {
	var errs []string
	c := &s.Capture
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		errs = append(errs, "capture.path: must be set when capture is enabled")
	}
	if c.BufferDuration <= 0 {
		errs = append(errs, "capture.bufferduration: must be positive")
	}
	if c.PreMargin < 0 || c.PostMargin < 0 {
		errs = append(errs, "capture.premargin/postmargin: must not be negative")
	}
	if c.PreMargin > c.BufferDuration {
		errs = append(errs, "capture.premargin: must not exceed capture.bufferduration")
	}
	return errs
}

func validatePublishSettings(s *Settings) []string {
	var errs []string
	p := &s.Publish
	if p.QueueSize <= 0 {
		errs = append(errs, "publish.queuesize: must be positive")
	}
	if p.BackoffInitial <= 0 {
		errs = append(errs, "publish.backoffinitial: must be positive")
	}
	if p.BackoffMax < p.BackoffInitial {
		errs = append(errs, "publish.backoffmax: must not be less than publish.backoffinitial")
	}
	if p.MQTT.Enabled {
		if u, err := url.Parse(p.MQTT.Broker); err != nil || u.Host == "" {
			errs = append(errs, fmt.Sprintf("publish.mqtt.broker: %q is not a valid broker URL", p.MQTT.Broker))
		}
		if p.MQTT.Topic == "" {
			errs = append(errs, "publish.mqtt.topic: must not be empty")
		}
	}
	if p.Webhook.Enabled {
		u, err := url.Parse(p.Webhook.URL)
		if err != nil || !strings.HasPrefix(u.Scheme, "http") {
			errs = append(errs, fmt.Sprintf("publish.webhook.url: %q is not a valid http(s) URL", p.Webhook.URL))
		}
		if p.Webhook.Timeout <= 0 {
			errs = append(errs, "publish.webhook.timeout: must be positive")
		}
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	var errs []string
	t := &s.Telemetry
	if !t.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(t.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("telemetry.listen: %q is not a valid host:port", t.Listen))
	}
	return errs
}
