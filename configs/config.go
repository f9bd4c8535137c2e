package configs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
	"github.com/RyanBlaney/micmetrics/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format" validate:"oneof=table json yaml"`

	// Capture format and analysis frame size
	Audio AudioConfig `mapstructure:"audio" yaml:"audio"`

	// Loudness estimator settings
	Loudness LoudnessConfig `mapstructure:"loudness" yaml:"loudness"`

	// Spectral estimator settings
	Spectral SpectralConfig `mapstructure:"spectral" yaml:"spectral"`

	// Streaming pipeline settings
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`

	// Recording output settings
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
}

// AudioConfig contains capture format settings
type AudioConfig struct {
	SampleRate    int `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gt=0"`
	Channels      int `mapstructure:"channels" yaml:"channels" validate:"min=1,max=8"`
	BitsPerSample int `mapstructure:"bits_per_sample" yaml:"bits_per_sample" validate:"eq=16"`
	BufferSize    int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"gt=0,pow2"`
}

// LoudnessConfig contains loudness estimator settings
type LoudnessConfig struct {
	FloorDB float64 `mapstructure:"floor_db" yaml:"floor_db" validate:"lt=0"`
}

// SpectralConfig contains spectral estimator settings
type SpectralConfig struct {
	BandwidthMode string `mapstructure:"bandwidth_mode" yaml:"bandwidth_mode" validate:"oneof=weighted reference"`
}

// StreamConfig contains streaming pipeline settings
type StreamConfig struct {
	SubscriberBuffer int           `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer" validate:"gte=0"`
	DropWhenFull     bool          `mapstructure:"drop_when_full" yaml:"drop_when_full"`
	PadFinalBuffer   bool          `mapstructure:"pad_final_buffer" yaml:"pad_final_buffer"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// RecordingConfig contains recording output settings
type RecordingConfig struct {
	OutputDir string           `mapstructure:"output_dir" yaml:"output_dir"`
	Upload    bool             `mapstructure:"upload" yaml:"upload"`
	S3        storage.S3Config `mapstructure:"s3" yaml:"s3"`
}

// validate is the shared validator instance for configuration checks
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("pow2", func(fl validator.FieldLevel) bool {
		return audio.IsPowerOfTwo(int(fl.Field().Int()))
	})
	validate.RegisterStructValidation(validateStreamConfig, StreamConfig{})
}

// validateStreamConfig rejects an unbuffered hub in drop mode, which would
// discard nearly every buffer
func validateStreamConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(StreamConfig)
	if cfg.DropWhenFull && cfg.SubscriberBuffer <= 0 {
		sl.ReportError(cfg.SubscriberBuffer, "subscriber_buffer", "SubscriberBuffer", "buffered_drop", "")
	}
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom applies defaults to v, decodes it and validates the result
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, fieldName(e)+" "+formatValidationMessage(e))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	if config.Recording.Upload && !config.Recording.S3.IsConfigured() {
		return fmt.Errorf("invalid configuration: recording.upload requires recording.s3 bucket and credentials")
	}

	return nil
}

// fieldName returns the dotted config key of a failed field
func fieldName(e validator.FieldError) string {
	_, key, found := strings.Cut(e.Namespace(), ".")
	if !found {
		return e.Field()
	}
	return key
}

// formatValidationMessage creates a human-readable message from a validator error
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", e.Param())
	case "eq":
		return fmt.Sprintf("must be %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "pow2":
		return "must be a power of two"
	case "buffered_drop":
		return "must be greater than 0 when stream.drop_when_full is set"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
