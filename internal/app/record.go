package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/audio/wav"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
	"github.com/RyanBlaney/micmetrics/pkg/storage"
	"github.com/RyanBlaney/micmetrics/pkg/stream"
)

// RecordingReport is the result of one recording
type RecordingReport struct {
	Path            string                   `json:"path" yaml:"path"`
	SampleRate      uint32                   `json:"sample_rate" yaml:"sample_rate"`
	Channels        int                      `json:"channels" yaml:"channels"`
	Samples         int64                    `json:"samples" yaml:"samples"`
	DurationSeconds float64                  `json:"duration_seconds" yaml:"duration_seconds"`
	Buffers         int                      `json:"buffers" yaml:"buffers"`
	PeakLevel       float64                  `json:"peak_level" yaml:"peak_level"`
	Loudness        analyzers.LoudnessRecord `json:"loudness" yaml:"loudness"`
	S3Key           string                   `json:"s3_key,omitempty" yaml:"s3_key,omitempty"`
}

// Summary implements Tabular
func (r *RecordingReport) Summary() [][2]string {
	rows := [][2]string{
		{"path", r.Path},
		{"sample_rate", fmt.Sprintf("%d Hz", r.SampleRate)},
		{"channels", strconv.Itoa(r.Channels)},
		{"samples", strconv.FormatInt(r.Samples, 10)},
		{"duration", fmt.Sprintf("%.3f s", r.DurationSeconds)},
		{"buffers", strconv.Itoa(r.Buffers)},
		{"peak_level", fmt.Sprintf("%.3f", r.PeakLevel)},
		{"loudness", fmt.Sprintf("%.2f dBFS", r.Loudness.Decibels)},
	}
	if r.S3Key != "" {
		rows = append(rows, [2]string{"s3_key", r.S3Key})
	}
	return rows
}

// Columns implements Tabular
func (r *RecordingReport) Columns() []string { return nil }

// Rows implements Tabular
func (r *RecordingReport) Rows() [][]string { return nil }

// Record streams the input file or a generated tone into a WAV file and
// optionally uploads it
func (app *App) Record(ctx context.Context) error {
	report, err := app.RecordTo(ctx, app.recordingPath())
	if err != nil {
		return err
	}
	if err := app.outputResults(report); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}
	return nil
}

// recordingPath resolves the output path, defaulting to a timestamped file
// in the configured recording directory
func (app *App) recordingPath() string {
	if app.ctx.RecordingPath != "" {
		return wav.EnsureExtension(app.ctx.RecordingPath)
	}
	name := fmt.Sprintf("recording-%s.wav", time.Now().Format("20060102-150405"))
	return filepath.Join(app.config.Recording.OutputDir, name)
}

// recordingSource builds the source for a recording: the input file when set,
// otherwise a tone at the configured sample rate
func (app *App) recordingSource() (stream.Source, uint32, error) {
	bufferSize := app.config.Audio.BufferSize

	if app.ctx.InputFile != "" {
		clip, err := wav.ReadFile(app.ctx.InputFile)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s: %w", app.ctx.InputFile, err)
		}
		src, err := stream.NewClipSource(clip.Mono(), float64(clip.SampleRate), bufferSize, false)
		if err != nil {
			return nil, 0, err
		}
		return src, uint32(clip.SampleRate), nil
	}

	if app.ctx.ToneHz <= 0 || app.ctx.ToneDuration <= 0 {
		return nil, 0, fmt.Errorf("either an input file or a tone frequency and duration is required")
	}
	rate := app.config.Audio.SampleRate
	src, err := stream.NewToneSource(app.ctx.ToneHz, float64(rate), bufferSize, app.ctx.ToneDuration)
	if err != nil {
		return nil, 0, err
	}
	return src, uint32(rate), nil
}

// RecordTo runs a recording session into path
func (app *App) RecordTo(ctx context.Context, path string) (*RecordingReport, error) {
	logger := app.logger.WithFields(logging.Fields{
		"function": "RecordTo",
		"path":     path,
	})

	src, rate, err := app.recordingSource()
	if err != nil {
		return nil, err
	}

	format := wav.Format{
		SampleRate:    rate,
		Channels:      uint16(app.config.Audio.Channels),
		BitsPerSample: uint16(app.config.Audio.BitsPerSample),
	}
	writer, err := wav.Create(path, format)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	est := app.loudnessEstimator()
	meter := stream.NewLoudnessAnalyzer(est, app.config.Stream.SubscriberBuffer)
	summary := stream.NewLoudnessSummary(est)

	var (
		wg        sync.WaitGroup
		peakLevel float64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for rec := range meter.Results() {
			level := analyzers.LinearLevel(rec.Decibels)
			peakLevel = max(peakLevel, level)
			logger.Debug("Level", logging.Fields{
				"timestamp": rec.Timestamp,
				"db":        rec.Decibels,
				"level":     level,
			})
		}
	}()

	session := stream.NewSessionWithConfig(app.sessionConfig())
	session.OnStateChange(func(s stream.State) {
		if s.Kind != stream.StateStreaming || s.SampleTime == 0 {
			logger.Debug("Recorder state", logging.Fields{"state": s.String()})
		}
	})

	result, err := session.Run(ctx, src, stream.NewRecordingSink(writer), meter, summary)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("recording failed: %w", err)
	}

	loudness, _ := summary.Result()
	report := &RecordingReport{
		Path:            path,
		SampleRate:      rate,
		Channels:        int(format.Channels),
		Samples:         result.Samples,
		DurationSeconds: float64(result.Samples) / float64(rate),
		Buffers:         result.Buffers,
		PeakLevel:       peakLevel,
		Loudness:        loudness,
	}

	logger.Info("Recording completed", logging.Fields{
		"samples":  result.Samples,
		"loudness": loudness.Decibels,
	})

	if app.config.Recording.Upload {
		key, err := app.upload(ctx, path)
		if err != nil {
			return nil, err
		}
		report.S3Key = key
	}

	return report, nil
}

func (app *App) upload(ctx context.Context, path string) (string, error) {
	uploader, err := storage.NewUploader(&app.config.Recording.S3)
	if err != nil {
		return "", fmt.Errorf("failed to create uploader: %w", err)
	}
	return uploader.Upload(ctx, path)
}
