// conf/consts.go hard coded constants
package conf

const (
	SampleRate  = 16000 // Sample rate of the audio fed to the detectors
	BitDepth    = 16    // Bit depth of captured PCM audio
	NumChannels = 1     // Number of channels of captured audio

	EventType = "dog_bark" // Event type carried on the wire for bark events
)
