package configs

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, ValidateConfig(GetDefaultConfig()))
}

func TestLoadConfigFromDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 16, cfg.Audio.BitsPerSample)
	assert.Equal(t, 4096, cfg.Audio.BufferSize)
	assert.Equal(t, -120.0, cfg.Loudness.FloorDB)
	assert.Equal(t, "weighted", cfg.Spectral.BandwidthMode)
	assert.True(t, cfg.Stream.PadFinalBuffer)
	assert.Equal(t, "recordings", cfg.Recording.S3.Prefix)
}

func TestLoadConfigFromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
output_format: json
audio:
  buffer_size: 1024
spectral:
  bandwidth_mode: reference
stream:
  drop_when_full: true
  timeout: 30s
recording:
  upload: true
  s3:
    bucket: takes
    access_key_id: AKIA
    secret_access_key: shh
`)))

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 1024, cfg.Audio.BufferSize)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, "reference", cfg.Spectral.BandwidthMode)
	assert.True(t, cfg.Stream.DropWhenFull)
	assert.Equal(t, 30*time.Second, cfg.Stream.Timeout)
	assert.True(t, cfg.Recording.S3.IsConfigured())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MICMETRICS_AUDIO_BUFFER_SIZE", "2048")
	t.Setenv("MICMETRICS_RECORDING_S3_BUCKET", "from-env")

	v := viper.New()
	v.SetEnvPrefix("MICMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Audio.BufferSize)
	assert.Equal(t, "from-env", cfg.Recording.S3.Bucket)
}

func TestValidateConfigRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"buffer not power of two", func(c *Config) { c.Audio.BufferSize = 1000 }, "audio.buffer_size must be a power of two"},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate must be greater than 0"},
		{"24-bit", func(c *Config) { c.Audio.BitsPerSample = 24 }, "audio.bits_per_sample must be 16"},
		{"positive floor", func(c *Config) { c.Loudness.FloorDB = 3 }, "loudness.floor_db must be less than 0"},
		{"unknown bandwidth", func(c *Config) { c.Spectral.BandwidthMode = "fancy" }, "spectral.bandwidth_mode must be one of"},
		{"unknown output", func(c *Config) { c.OutputFormat = "csv" }, "output_format must be one of"},
		{"negative buffer", func(c *Config) { c.Stream.SubscriberBuffer = -1 }, "stream.subscriber_buffer"},
		{"unbuffered drop mode", func(c *Config) {
			c.Stream.DropWhenFull = true
			c.Stream.SubscriberBuffer = 0
		}, "stream.subscriber_buffer must be greater than 0 when stream.drop_when_full is set"},
		{"upload without bucket", func(c *Config) { c.Recording.Upload = true }, "recording.upload requires"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateConfigStreamModes(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Stream.SubscriberBuffer = 0
	assert.NoError(t, ValidateConfig(cfg), "unbuffered blocking hub")

	cfg.Stream.DropWhenFull = true
	cfg.Stream.SubscriberBuffer = 1
	assert.NoError(t, ValidateConfig(cfg), "buffered drop mode")
}

func TestLoadConfigFromInvalid(t *testing.T) {
	v := viper.New()
	v.Set("audio.buffer_size", 3000)

	_, err := LoadConfigFrom(v)
	assert.ErrorContains(t, err, "power of two")
}
