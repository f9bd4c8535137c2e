package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/audio/wav"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
	"github.com/RyanBlaney/micmetrics/pkg/stream"
)

// EnvelopeMetrics is the envelope of one buffer without its samples
type EnvelopeMetrics struct {
	Min float32 `json:"min" yaml:"min"`
	Max float32 `json:"max" yaml:"max"`
}

// BufferMetrics collects every requested metric for one buffer
type BufferMetrics struct {
	Index     int                       `json:"index" yaml:"index"`
	Timestamp int64                     `json:"timestamp" yaml:"timestamp"`
	Envelope  *EnvelopeMetrics          `json:"envelope,omitempty" yaml:"envelope,omitempty"`
	Loudness  *analyzers.LoudnessRecord `json:"loudness,omitempty" yaml:"loudness,omitempty"`
	Spectral  *analyzers.SpectralRecord `json:"spectral,omitempty" yaml:"spectral,omitempty"`
}

// AnalysisReport is the result of analyzing one file
type AnalysisReport struct {
	File            string                   `json:"file" yaml:"file"`
	SampleRate      int                      `json:"sample_rate" yaml:"sample_rate"`
	Channels        int                      `json:"channels" yaml:"channels"`
	DurationSeconds float64                  `json:"duration_seconds" yaml:"duration_seconds"`
	BufferSize      int                      `json:"buffer_size" yaml:"buffer_size"`
	Metrics         []string                 `json:"metrics" yaml:"metrics"`
	Dropped         uint64                   `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Summary         analyzers.LoudnessRecord `json:"summary" yaml:"summary"`
	Buffers         []BufferMetrics          `json:"buffers" yaml:"buffers"`
}

// Summary implements Tabular
func (r *AnalysisReport) Summary() [][2]string {
	rows := [][2]string{
		{"file", r.File},
		{"sample_rate", fmt.Sprintf("%d Hz", r.SampleRate)},
		{"channels", strconv.Itoa(r.Channels)},
		{"duration", fmt.Sprintf("%.3f s", r.DurationSeconds)},
		{"buffer_size", strconv.Itoa(r.BufferSize)},
		{"loudness", fmt.Sprintf("%.2f dBFS (peak %.4f, rms %.4f)",
			r.Summary.Decibels, r.Summary.PeakAmplitude, r.Summary.RMSAmplitude)},
	}
	if r.Dropped > 0 {
		rows = append(rows, [2]string{"dropped", strconv.FormatUint(r.Dropped, 10)})
	}
	return rows
}

// Columns implements Tabular
func (r *AnalysisReport) Columns() []string {
	cols := []string{"index", "timestamp"}
	if slices.Contains(r.Metrics, MetricEnvelope) {
		cols = append(cols, "min", "max")
	}
	if slices.Contains(r.Metrics, MetricLoudness) {
		cols = append(cols, "db", "peak", "rms")
	}
	if slices.Contains(r.Metrics, MetricSpectral) {
		cols = append(cols, "dominant_hz", "centroid_hz", "bandwidth_hz")
	}
	return cols
}

// Rows implements Tabular
func (r *AnalysisReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Buffers))
	for _, b := range r.Buffers {
		row := []string{strconv.Itoa(b.Index), strconv.FormatInt(b.Timestamp, 10)}
		if slices.Contains(r.Metrics, MetricEnvelope) {
			row = append(row, optional(b.Envelope, func(e *EnvelopeMetrics) []string {
				return []string{fmt.Sprintf("%.4f", e.Min), fmt.Sprintf("%.4f", e.Max)}
			}, 2)...)
		}
		if slices.Contains(r.Metrics, MetricLoudness) {
			row = append(row, optional(b.Loudness, func(l *analyzers.LoudnessRecord) []string {
				return []string{fmt.Sprintf("%.2f", l.Decibels), fmt.Sprintf("%.4f", l.PeakAmplitude), fmt.Sprintf("%.4f", l.RMSAmplitude)}
			}, 3)...)
		}
		if slices.Contains(r.Metrics, MetricSpectral) {
			row = append(row, optional(b.Spectral, func(s *analyzers.SpectralRecord) []string {
				return []string{fmt.Sprintf("%.1f", s.DominantFrequencyHz), fmt.Sprintf("%.1f", s.SpectralCentroidHz), fmt.Sprintf("%.1f", s.SpectralBandwidthHz)}
			}, 3)...)
		}
		rows = append(rows, row)
	}
	return rows
}

// optional renders v, or n dashes when the buffer was dropped for that metric
func optional[T any](v *T, render func(*T) []string, n int) []string {
	if v != nil {
		return render(v)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = "-"
	}
	return out
}

// ParseMetrics validates metric names, returning every metric when none are given
func ParseMetrics(names []string) ([]string, error) {
	if len(names) == 0 {
		return slices.Clone(AllMetrics), nil
	}
	var out []string
	for _, n := range names {
		if !slices.Contains(AllMetrics, n) {
			return nil, fmt.Errorf("unknown metric %q (expected one of %v)", n, AllMetrics)
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Analyze streams the input file through the requested analyzers and prints the report
func (app *App) Analyze(ctx context.Context) error {
	report, err := app.AnalyzeFile(ctx, app.ctx.InputFile)
	if err != nil {
		return err
	}
	if err := app.outputResults(report); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}
	return nil
}

// AnalyzeFile runs the analysis pipeline over a WAV file
func (app *App) AnalyzeFile(ctx context.Context, path string) (*AnalysisReport, error) {
	metrics, err := ParseMetrics(app.ctx.Metrics)
	if err != nil {
		return nil, err
	}

	logger := app.logger.WithFields(logging.Fields{
		"function": "AnalyzeFile",
		"file":     path,
	})

	clip, err := wav.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	bufferSize := app.config.Audio.BufferSize
	samples := clip.Mono()
	pad := app.config.Stream.PadFinalBuffer
	if !pad && slices.Contains(metrics, MetricSpectral) {
		// the FFT only takes whole power-of-two frames
		if rem := len(samples) % bufferSize; rem != 0 {
			logger.Debug("Dropping partial final buffer", logging.Fields{"samples": rem})
			samples = samples[:len(samples)-rem]
		}
	}

	src, err := stream.NewClipSource(samples, float64(clip.SampleRate), bufferSize, pad)
	if err != nil {
		return nil, err
	}
	spectral, err := app.spectralEstimator()
	if err != nil {
		return nil, err
	}

	var (
		consumers []stream.Consumer
		wg        sync.WaitGroup
		envelopes []analyzers.EnvelopeRecord
		levels    []analyzers.LoudnessRecord
		spectra   []analyzers.SpectralRecord
	)

	if slices.Contains(metrics, MetricEnvelope) {
		a := stream.NewEnvelopeAnalyzer(app.config.Stream.SubscriberBuffer)
		consumers = append(consumers, a)
		drainResults(&wg, a.Results(), &envelopes)
	}
	if slices.Contains(metrics, MetricLoudness) {
		a := stream.NewLoudnessAnalyzer(app.loudnessEstimator(), app.config.Stream.SubscriberBuffer)
		consumers = append(consumers, a)
		drainResults(&wg, a.Results(), &levels)
	}
	if slices.Contains(metrics, MetricSpectral) {
		a := stream.NewSpectralAnalyzer(spectral, app.config.Stream.SubscriberBuffer)
		consumers = append(consumers, a)
		drainResults(&wg, a.Results(), &spectra)
	}

	summary := stream.NewLoudnessSummary(app.loudnessEstimator())
	consumers = append(consumers, summary)

	session := stream.NewSessionWithConfig(app.sessionConfig())
	result, err := session.Run(ctx, src, consumers...)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	total, _ := summary.Result()
	report := &AnalysisReport{
		File:            path,
		SampleRate:      clip.SampleRate,
		Channels:        clip.Channels,
		DurationSeconds: clip.Duration().Seconds(),
		BufferSize:      bufferSize,
		Metrics:         metrics,
		Dropped:         result.Dropped,
		Summary:         total,
		Buffers:         mergeBufferMetrics(bufferSize, envelopes, levels, spectra),
	}

	logger.Info("Analysis completed", logging.Fields{
		"buffers":  result.Buffers,
		"dropped":  result.Dropped,
		"loudness": total.Decibels,
	})

	return report, nil
}

// drainResults collects a sequent analyzer's records, dropping the
// end-of-stream sentinel
func drainResults[T any](wg *sync.WaitGroup, ch <-chan T, out *[]T) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		var records []T
		for rec := range ch {
			records = append(records, rec)
		}
		if len(records) > 0 {
			records = records[:len(records)-1]
		}
		*out = records
	}()
}

// mergeBufferMetrics lines records up by timestamp. With drop-when-full a
// metric may be missing for some buffers.
func mergeBufferMetrics(bufferSize int, envelopes []analyzers.EnvelopeRecord, levels []analyzers.LoudnessRecord, spectra []analyzers.SpectralRecord) []BufferMetrics {
	byTimestamp := make(map[int64]*BufferMetrics)
	get := func(ts int64) *BufferMetrics {
		if b, ok := byTimestamp[ts]; ok {
			return b
		}
		b := &BufferMetrics{Index: int(ts) / max(bufferSize, 1), Timestamp: ts}
		byTimestamp[ts] = b
		return b
	}

	for _, e := range envelopes {
		get(e.Timestamp).Envelope = &EnvelopeMetrics{Min: e.Min, Max: e.Max}
	}
	for i := range levels {
		get(levels[i].Timestamp).Loudness = &levels[i]
	}
	for i := range spectra {
		get(spectra[i].Timestamp).Spectral = &spectra[i]
	}

	out := make([]BufferMetrics, 0, len(byTimestamp))
	for _, b := range byTimestamp {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b BufferMetrics) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}
