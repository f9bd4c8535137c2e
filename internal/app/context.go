package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/micmetrics/configs"
	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
	"github.com/RyanBlaney/micmetrics/pkg/stream"
)

// Metric names accepted by the analyze command
const (
	MetricEnvelope = "envelope"
	MetricLoudness = "loudness"
	MetricSpectral = "spectral"
)

// AllMetrics lists every per-buffer metric
var AllMetrics = []string{MetricEnvelope, MetricLoudness, MetricSpectral}

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	InputFile    string
	OutputFile   string // report destination, stdout when empty
	OutputFormat string
	BufferSize   int
	Metrics      []string

	// Recording arguments
	RecordingPath string
	ToneHz        float64
	ToneDuration  time.Duration
	Upload        bool

	Verbose bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// App runs analysis, recording and decoding jobs
type App struct {
	ctx    *Context
	config *configs.Config
	logger logging.Logger
}

// NewApp creates a new application, loading configuration unless ctx
// already carries one
func NewApp(ctx *Context) (*App, error) {
	logger := setupLogging(ctx)
	ctx.Logger = logger

	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	logger.Debug("Application initialized", logging.Fields{
		"output_format": ctx.OutputFormat,
		"buffer_size":   config.Audio.BufferSize,
		"sample_rate":   config.Audio.SampleRate,
	})

	return &App{
		ctx:    ctx,
		config: config,
		logger: logger,
	}, nil
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	return logging.WithFields(logging.Fields{"component": "app"})
}

// loadAndMergeConfig loads configuration and applies CLI overrides
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	config := ctx.Config
	if config == nil {
		loaded, err := configs.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load base configuration: %w", err)
		}
		config = loaded
	}

	merged := *config
	if ctx.OutputFormat != "" {
		merged.OutputFormat = ctx.OutputFormat
	}
	if ctx.BufferSize > 0 {
		merged.Audio.BufferSize = ctx.BufferSize
	}
	if ctx.Upload {
		merged.Recording.Upload = true
	}
	if ctx.Verbose {
		merged.Verbose = true
	}

	if err := configs.ValidateConfig(&merged); err != nil {
		return nil, err
	}

	ctx.OutputFormat = merged.OutputFormat
	return &merged, nil
}

// sessionConfig maps the stream settings onto a session configuration
func (app *App) sessionConfig() *stream.SessionConfig {
	return &stream.SessionConfig{
		Hub: stream.HubConfig{
			SubscriberBuffer: app.config.Stream.SubscriberBuffer,
			DropWhenFull:     app.config.Stream.DropWhenFull,
		},
		Timeout: app.config.Stream.Timeout,
	}
}

func (app *App) loudnessEstimator() *analyzers.LoudnessEstimator {
	return analyzers.NewLoudnessEstimator(app.config.Loudness.FloorDB)
}

func (app *App) spectralEstimator() (*analyzers.SpectralEstimator, error) {
	mode, err := analyzers.ParseBandwidthMode(app.config.Spectral.BandwidthMode)
	if err != nil {
		return nil, err
	}
	return analyzers.NewSpectralEstimator(mode), nil
}

// writeToFile writes data to the specified output file
func (app *App) writeToFile(path string, data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": path,
		"size_bytes":  len(data),
	})

	return nil
}
