package configs

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
)

// setDefaults registers default values for every configuration key
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	// Application defaults
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("output_format", d.OutputFormat)

	// Audio defaults
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.bits_per_sample", d.Audio.BitsPerSample)
	v.SetDefault("audio.buffer_size", d.Audio.BufferSize)

	// Analyzer defaults
	v.SetDefault("loudness.floor_db", d.Loudness.FloorDB)
	v.SetDefault("spectral.bandwidth_mode", d.Spectral.BandwidthMode)

	// Stream defaults
	v.SetDefault("stream.subscriber_buffer", d.Stream.SubscriberBuffer)
	v.SetDefault("stream.drop_when_full", d.Stream.DropWhenFull)
	v.SetDefault("stream.pad_final_buffer", d.Stream.PadFinalBuffer)
	v.SetDefault("stream.timeout", d.Stream.Timeout)

	// Recording defaults. S3 keys get empty defaults so they can be set from
	// the environment alone.
	v.SetDefault("recording.output_dir", d.Recording.OutputDir)
	v.SetDefault("recording.upload", d.Recording.Upload)
	v.SetDefault("recording.s3.endpoint", "")
	v.SetDefault("recording.s3.region", "")
	v.SetDefault("recording.s3.bucket", "")
	v.SetDefault("recording.s3.prefix", d.Recording.S3.Prefix)
	v.SetDefault("recording.s3.access_key_id", "")
	v.SetDefault("recording.s3.secret_access_key", "")
}

// GetDefaultConfig returns a complete default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: "table",

		Audio:     GetDefaultAudioConfig(),
		Loudness:  LoudnessConfig{FloorDB: analyzers.DefaultFloorDB},
		Spectral:  SpectralConfig{BandwidthMode: string(analyzers.BandwidthWeighted)},
		Stream:    GetDefaultStreamConfig(),
		Recording: GetDefaultRecordingConfig(),
	}
}

// GetDefaultAudioConfig returns 16 kHz mono 16-bit capture with 4096-sample buffers
func GetDefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
		BufferSize:    audio.DefaultBufferSize,
	}
}

// GetDefaultStreamConfig returns a blocking pipeline that pads the last frame
func GetDefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SubscriberBuffer: 8,
		DropWhenFull:     false,
		PadFinalBuffer:   true,
	}
}

// GetDefaultRecordingConfig writes recordings under the user data directory
func GetDefaultRecordingConfig() RecordingConfig {
	home, _ := os.UserHomeDir()

	cfg := RecordingConfig{
		OutputDir: filepath.Join(home, ".local", "share", "micmetrics", "recordings"),
	}
	cfg.S3.Prefix = "recordings"
	return cfg
}
