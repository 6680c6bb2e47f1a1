// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("deviceid", "linux-mic-01")

	viper.SetDefault("log.enabled", true)
	viper.SetDefault("log.path", "barkwatch.log")
	viper.SetDefault("log.maxsize", 5)
	viper.SetDefault("log.maxbackups", 5)

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.windowduration", "1s")
	viper.SetDefault("audio.hopduration", "500ms")
	viper.SetDefault("audio.deviceretrymax", 5)
	viper.SetDefault("audio.deviceretryinitial", "1s")

	viper.SetDefault("detection.threshold", 0.5)

	viper.SetDefault("detection.model.enabled", true)
	viper.SetDefault("detection.model.path", "models/yamnet.tflite")
	viper.SetDefault("detection.model.classmappath", "models/yamnet_class_map.csv")
	viper.SetDefault("detection.model.labelsubstrings", []string{"dog", "bark", "bow-wow", "yip", "howl", "growling", "whimper"})
	viper.SetDefault("detection.model.threads", 0)
	viper.SetDefault("detection.model.usexnnpack", true)

	viper.SetDefault("detection.heuristic.rmsthreshold", 0.02)
	viper.SetDefault("detection.heuristic.bandlowhz", 400)
	viper.SetDefault("detection.heuristic.bandhighhz", 3000)
	viper.SetDefault("detection.heuristic.bandenergymin", 1.0e-6)

	viper.SetDefault("smoothing.historylength", 5)
	viper.SetDefault("smoothing.positivesrequired", 3)
	viper.SetDefault("smoothing.cooldown", "10s")

	viper.SetDefault("capture.enabled", true)
	viper.SetDefault("capture.path", "clips/")
	viper.SetDefault("capture.bufferduration", "20s")
	viper.SetDefault("capture.premargin", "5s")
	viper.SetDefault("capture.postmargin", "5s")

	viper.SetDefault("publish.dryrun", false)
	viper.SetDefault("publish.queuesize", 64)
	viper.SetDefault("publish.backoffinitial", "1s")
	viper.SetDefault("publish.backoffmax", "5m")
	viper.SetDefault("publish.draintimeout", "5s")

	viper.SetDefault("publish.mqtt.enabled", false)
	viper.SetDefault("publish.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("publish.mqtt.topic", "home/sensors/dog_bark")
	viper.SetDefault("publish.mqtt.username", "")
	viper.SetDefault("publish.mqtt.password", "")
	viper.SetDefault("publish.mqtt.clientid", "barkwatch")

	viper.SetDefault("publish.webhook.enabled", false)
	viper.SetDefault("publish.webhook.url", "")
	viper.SetDefault("publish.webhook.timeout", "10s")
	viper.SetDefault("publish.webhook.eventtype", "")
	viper.SetDefault("publish.webhook.secret", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}
