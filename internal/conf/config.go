// config.go: This file contains the configuration for the barkwatch
// application. It defines the settings struct and functions to load and
// validate the settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogSettings contains settings for file logging.
type LogSettings struct {
	Enabled    bool   // true to write a JSON log file in addition to console output
	Path       string // log file path
	MaxSize    int    // log rotation size in megabytes
	MaxBackups int    // number of rotated log files to keep
}

// AudioSettings contains settings for audio capture and windowing.
type AudioSettings struct {
	Source             string        // capture device name or ID substring ("sysdefault", "USB Audio", ...)
	WindowDuration     time.Duration // duration of one analysis window
	HopDuration        time.Duration // advance between consecutive windows
	DeviceRetryMax     int           // capture device reopen attempts before giving up
	DeviceRetryInitial time.Duration // initial reopen backoff, doubled per attempt
}

// ModelSettings contains settings for the TFLite bark scorer.
type ModelSettings struct {
	Enabled         bool     // attempt to use the TFLite model at startup
	Path            string   // path to the YAMNet tflite model file
	ClassMapPath    string   // path to the YAMNet class map CSV
	LabelSubstrings []string // class labels containing any of these substrings count as bark classes
	Threads         int      // interpreter threads, 0 for automatic
	UseXNNPACK      bool     // use XNNPACK delegate if available
}

// HeuristicSettings contains settings for the energy-based fallback scorer.
type HeuristicSettings struct {
	RMSThreshold  float64 // RMS level considered loud enough for a bark
	BandLowHz     float64 // lower bound of the bark frequency band
	BandHighHz    float64 // upper bound of the bark frequency band
	BandEnergyMin float64 // minimum in-band energy for a positive verdict
}

// DetectionSettings contains settings for classification.
type DetectionSettings struct {
	Threshold float64           // score threshold for a positive window verdict
	Model     ModelSettings     // TFLite model scorer settings
	Heuristic HeuristicSettings // heuristic scorer settings
}

// SmoothingSettings contains settings for verdict smoothing and cooldown.
type SmoothingSettings struct {
	HistoryLength     int           // number of recent verdicts retained
	PositivesRequired int           // positive verdicts required to emit an event
	Cooldown          time.Duration // minimum interval between emitted events
}

// CaptureSettings contains settings for event clip capture.
type CaptureSettings struct {
	Enabled        bool          // export audio clips around detected events
	Path           string        // clip output directory
	BufferDuration time.Duration // rolling buffer length
	PreMargin      time.Duration // audio retained before the event timestamp
	PostMargin     time.Duration // audio collected after the event timestamp
}

// MQTTSettings contains settings for the MQTT sink.
type MQTTSettings struct {
	Enabled  bool   // true to enable the MQTT sink
	Broker   string // broker URL (tcp://host:port)
	Topic    string // topic bark events are published to
	Username string // MQTT username
	Password string // MQTT password
	ClientID string // MQTT client ID
}

// WebhookSettings contains settings for the HTTP webhook sink.
type WebhookSettings struct {
	Enabled   bool          // true to enable the webhook sink
	URL       string        // webhook endpoint
	Timeout   time.Duration // per-request timeout
	EventType string        // trigger integration envelope event type, optional
	Secret    string        // trigger integration envelope secret, optional
}

// PublishSettings contains settings for asynchronous event delivery.
type PublishSettings struct {
	DryRun         bool            // log events instead of delivering them
	QueueSize      int             // pending event queue capacity, oldest dropped on overflow
	BackoffInitial time.Duration   // initial sink retry backoff
	BackoffMax     time.Duration   // sink retry backoff ceiling
	DrainTimeout   time.Duration   // time allowed to drain the queue on shutdown
	MQTT           MQTTSettings    // MQTT sink settings
	Webhook        WebhookSettings // webhook sink settings
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to expose a Prometheus /metrics endpoint
	Listen  string // listen address and port
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug     bool              // enable debug logging
	DeviceID  string            // identifier carried in emitted events
	Log       LogSettings       // file logging settings
	Audio     AudioSettings     // capture and windowing settings
	Detection DetectionSettings // classifier settings
	Smoothing SmoothingSettings // smoothing and cooldown settings
	Capture   CaptureSettings   // clip capture settings
	Publish   PublishSettings   // event delivery settings
	Telemetry TelemetrySettings // metrics endpoint settings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and returns validated settings.
// An empty configPath falls back to the default search paths.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configPath); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the current settings instance, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper(configPath string) error {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		for _, path := range defaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			// No config file anywhere, defaults alone are a valid setup.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// defaultConfigPaths returns the config file search paths in priority order.
func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "barkwatch"))
	}
	paths = append(paths, "/etc/barkwatch")
	return paths
}
