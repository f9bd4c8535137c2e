package app

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/micmetrics/configs"
	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/audio/wav"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
)

type AppTestSuite struct {
	suite.Suite
	dir  string
	logs *observer.ObservedLogs
}

func (s *AppTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *AppTestSuite) newApp(mutate func(*Context)) *App {
	core, logs := observer.New(zapcore.DebugLevel)
	s.logs = logs

	ctx := &Context{
		Config: configs.GetDefaultConfig(),
		Logger: logging.NewWithCore(core),
	}
	if mutate != nil {
		mutate(ctx)
	}
	app, err := NewApp(ctx)
	s.Require().NoError(err)
	return app
}

func (s *AppTestSuite) writeTone(name string, n int, freq float64) string {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, wav.Encode(samples), 0o644))
	return path
}

func (s *AppTestSuite) TestAnalyzeFile() {
	path := s.writeTone("tone.wav", 4096*2+100, 1000)
	app := s.newApp(nil)

	report, err := app.AnalyzeFile(context.Background(), path)
	s.Require().NoError(err)

	s.Equal(16000, report.SampleRate)
	s.Equal(1, report.Channels)
	s.Equal(4096, report.BufferSize)
	s.Equal(AllMetrics, report.Metrics)
	s.Require().Len(report.Buffers, 3)

	for i, b := range report.Buffers {
		s.Equal(i, b.Index)
		s.Equal(int64(i*4096), b.Timestamp)
		s.Require().NotNil(b.Envelope)
		s.Require().NotNil(b.Loudness)
		s.Require().NotNil(b.Spectral)
	}
	for _, b := range report.Buffers[:2] {
		s.InDelta(1000, b.Spectral.DominantFrequencyHz, 0.01)
		s.InDelta(-9.03, b.Loudness.Decibels, 0.05)
		s.InDelta(0.5, b.Envelope.Max, 1e-3)
	}

	s.Greater(report.Summary.Decibels, -12.0)
	s.Less(report.Summary.Decibels, -9.0)
	s.NotEmpty(s.logs.FilterMessage("Analysis completed").All())
}

func (s *AppTestSuite) TestAnalyzeFileSelectedMetrics() {
	path := s.writeTone("tone.wav", 4096, 500)
	app := s.newApp(func(c *Context) {
		c.Metrics = []string{MetricLoudness, MetricLoudness}
		c.BufferSize = 1024
	})

	report, err := app.AnalyzeFile(context.Background(), path)
	s.Require().NoError(err)

	s.Equal([]string{MetricLoudness}, report.Metrics)
	s.Equal([]string{"index", "timestamp", "db", "peak", "rms"}, report.Columns())
	s.Require().Len(report.Buffers, 4)
	s.Nil(report.Buffers[0].Spectral)
	s.Nil(report.Buffers[0].Envelope)
}

func (s *AppTestSuite) TestAnalyzeFileWithoutPaddingDropsPartialFrame() {
	path := s.writeTone("tone.wav", 1024*3+10, 500)
	app := s.newApp(func(c *Context) {
		c.BufferSize = 1024
		c.Config.Stream.PadFinalBuffer = false
	})

	report, err := app.AnalyzeFile(context.Background(), path)
	s.Require().NoError(err)
	s.Len(report.Buffers, 3)
}

func (s *AppTestSuite) TestAnalyzeFileRejectsGarbage() {
	path := filepath.Join(s.dir, "junk.wav")
	s.Require().NoError(os.WriteFile(path, []byte("not a wave file, just some bytes here"), 0o644))

	_, err := s.newApp(nil).AnalyzeFile(context.Background(), path)
	s.Error(err)
}

func (s *AppTestSuite) TestRecordTone() {
	out := filepath.Join(s.dir, "out", "tone")
	app := s.newApp(func(c *Context) {
		c.ToneHz = 440
		c.ToneDuration = 500 * time.Millisecond
		c.RecordingPath = out
	})

	report, err := app.RecordTo(context.Background(), app.recordingPath())
	s.Require().NoError(err)

	s.Equal(out+".wav", report.Path)
	s.Equal(int64(8000), report.Samples)
	s.Equal(2, report.Buffers)
	s.InDelta(0.5, report.DurationSeconds, 1e-9)
	s.Greater(report.PeakLevel, 0.3)
	s.Empty(report.S3Key)

	data, err := os.ReadFile(report.Path)
	s.Require().NoError(err)
	samples, format, err := wav.DecodeStrict(data)
	s.Require().NoError(err)
	s.Equal(wav.DefaultFormat(), format)
	s.Len(samples, 8000)
}

func (s *AppTestSuite) TestRecordToneUsesConfiguredChannels() {
	app := s.newApp(func(c *Context) {
		c.ToneHz = 440
		c.ToneDuration = 250 * time.Millisecond
		c.Config.Audio.Channels = 2
	})

	report, err := app.RecordTo(context.Background(), filepath.Join(s.dir, "stereo.wav"))
	s.Require().NoError(err)
	s.Equal(2, report.Channels)
	s.Equal(int64(4000), report.Samples)
	s.InDelta(0.25, report.DurationSeconds, 1e-9)

	data, err := os.ReadFile(report.Path)
	s.Require().NoError(err)
	samples, format, err := wav.DecodeStrict(data)
	s.Require().NoError(err)
	s.Equal(uint16(2), format.Channels)
	s.Require().Len(samples, 8000)
	for i := 0; i < len(samples); i += 2 {
		s.Equal(samples[i], samples[i+1])
	}
}

func (s *AppTestSuite) TestRecordFromFile() {
	in := s.writeTone("in.wav", 5000, 300)
	app := s.newApp(func(c *Context) { c.InputFile = in })

	report, err := app.RecordTo(context.Background(), filepath.Join(s.dir, "copy.wav"))
	s.Require().NoError(err)
	s.Equal(int64(5000), report.Samples)

	original, err := wav.ReadFile(in)
	s.Require().NoError(err)
	copied, err := wav.ReadFile(report.Path)
	s.Require().NoError(err)
	s.Require().Len(copied.Samples, len(original.Samples))
	for i := range original.Samples {
		s.InDelta(original.Samples[i], copied.Samples[i], 2.0/32767)
	}
}

func (s *AppTestSuite) TestRecordRequiresSource() {
	app := s.newApp(nil)
	_, err := app.RecordTo(context.Background(), filepath.Join(s.dir, "x.wav"))
	s.Error(err)
}

func (s *AppTestSuite) TestDecodeFile() {
	path := s.writeTone("tone.wav", 1600, 1000)

	report, err := s.newApp(nil).DecodeFile(path)
	s.Require().NoError(err)
	s.Equal(1600, report.Samples)
	s.True(report.HeaderValid)
	s.Equal(uint32(16000), report.SampleRate)
	s.InDelta(0.1, report.DurationSeconds, 1e-9)
	s.InDelta(0.5, report.Loudness.PeakAmplitude, 1e-3)
}

func (s *AppTestSuite) TestDecodeFileWithBrokenHeader() {
	data := wav.Encode([]float32{0.5, -0.5})
	copy(data[0:4], "RIFX")
	path := filepath.Join(s.dir, "broken.wav")
	s.Require().NoError(os.WriteFile(path, data, 0o644))

	report, err := s.newApp(nil).DecodeFile(path)
	s.Require().NoError(err)
	s.False(report.HeaderValid)
	s.Equal(2, report.Samples)
	s.NotEmpty(s.logs.FilterMessage("Header does not validate, assuming 16 kHz").All())
}

func (s *AppTestSuite) TestOutputToFile() {
	path := s.writeTone("tone.wav", 2048, 1000)
	report := filepath.Join(s.dir, "reports", "report.json")
	app := s.newApp(func(c *Context) {
		c.InputFile = path
		c.OutputFile = report
		c.OutputFormat = "json"
		c.BufferSize = 1024
	})

	s.Require().NoError(app.Analyze(context.Background()))

	data, err := os.ReadFile(report)
	s.Require().NoError(err)
	var decoded AnalysisReport
	s.Require().NoError(json.Unmarshal(data, &decoded))
	s.Len(decoded.Buffers, 2)
	s.Equal(path, decoded.File)
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func TestNewAppRejectsInvalidOverrides(t *testing.T) {
	_, err := NewApp(&Context{
		Config:     configs.GetDefaultConfig(),
		BufferSize: 1000,
	})
	assert.ErrorContains(t, err, "power of two")

	_, err = NewApp(&Context{
		Config:       configs.GetDefaultConfig(),
		OutputFormat: "csv",
	})
	assert.Error(t, err)
}

func TestParseMetrics(t *testing.T) {
	all, err := ParseMetrics(nil)
	require.NoError(t, err)
	assert.Equal(t, AllMetrics, all)

	_, err = ParseMetrics([]string{"pitch"})
	assert.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	report := &AnalysisReport{
		File:       "take.wav",
		SampleRate: 16000,
		Channels:   1,
		BufferSize: 1024,
		Metrics:    []string{MetricSpectral},
		Buffers: []BufferMetrics{
			{Index: 0, Timestamp: 0},
		},
	}

	out, err := TableFormatter{}.Format(report)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "Sample Rate:")
	assert.Contains(t, text, "16000 Hz")
	assert.Contains(t, text, "DOMINANT HZ")
	assert.Contains(t, text, "-")

	_, err = TableFormatter{}.Format(map[string]int{"a": 1})
	assert.Error(t, err)
}

func TestJSONFormatterSanitizesNaN(t *testing.T) {
	report := &DecodeReport{File: "x.wav"}
	report.Loudness.Decibels = math.Inf(-1)
	report.Loudness.RMSAmplitude = math.NaN()

	out, err := JSONFormatter{}.Format(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	loudness := decoded["loudness"].(map[string]any)
	assert.Equal(t, 0.0, loudness["decibels"])
	assert.Equal(t, 0.0, loudness["rms_amplitude"])

	analysis := &AnalysisReport{
		File: "take.wav",
		Buffers: []BufferMetrics{{
			Spectral: &analyzers.SpectralRecord{SpectralBandwidthHz: math.NaN(), SpectralCentroidHz: 440},
		}},
	}
	out, err = JSONFormatter{}.Format(analysis)
	require.NoError(t, err)
	var decodedAnalysis AnalysisReport
	require.NoError(t, json.Unmarshal(out, &decodedAnalysis))
	require.Len(t, decodedAnalysis.Buffers, 1)
	assert.Equal(t, 0.0, decodedAnalysis.Buffers[0].Spectral.SpectralBandwidthHz)
	assert.Equal(t, 440.0, decodedAnalysis.Buffers[0].Spectral.SpectralCentroidHz)
	assert.True(t, math.IsNaN(analysis.Buffers[0].Spectral.SpectralBandwidthHz))

	_, err = JSONFormatter{}.Format(map[string]float64{"x": math.Inf(1)})
	assert.Error(t, err)
}

func TestYAMLFormatter(t *testing.T) {
	out, err := YAMLFormatter{}.Format(&RecordingReport{Path: "a.wav", SampleRate: 16000})
	require.NoError(t, err)

	var decoded RecordingReport
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "a.wav", decoded.Path)
	assert.Equal(t, uint32(16000), decoded.SampleRate)
}

func TestNewFormatter(t *testing.T) {
	for _, name := range []string{"json", "yaml", "table"} {
		_, err := NewFormatter(name)
		assert.NoError(t, err, name)
	}
	_, err := NewFormatter("xml")
	assert.Error(t, err)
}

func TestExampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "micmetrics.yaml")
	require.NoError(t, GenerateExampleConfig(path))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.GetDefaultConfig().Audio, cfg.Audio)
	assert.Equal(t, "weighted", cfg.Spectral.BandwidthMode)
	require.NoError(t, ValidateConfig(path))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("audio:\n  buffer_size: 1000\n"), 0o644))
	assert.Error(t, ValidateConfig(bad))

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, err != nil && strings.Contains(err.Error(), "does not exist"))
}
