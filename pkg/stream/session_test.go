package stream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/audio/wav"
)

type SessionTestSuite struct {
	suite.Suite
	session *Session
	samples []float32
}

func (s *SessionTestSuite) SetupTest() {
	s.session = NewSession()
	s.samples = make([]float32, 4096)
	for i := range s.samples {
		s.samples[i] = float32(i%64)/64 - 0.5
	}
}

func (s *SessionTestSuite) clip(frameSize int) Source {
	src, err := NewClipSource(s.samples, 16000, frameSize, true)
	s.Require().NoError(err)
	return src
}

func (s *SessionTestSuite) TestSequentAnalyzersEmitPerBufferThenSentinel() {
	envelope := NewEnvelopeAnalyzer(0)
	loudness := NewLoudnessAnalyzer(analyzers.NewLoudnessEstimator(analyzers.DefaultFloorDB), 0)
	spectral := NewSpectralAnalyzer(analyzers.NewSpectralEstimator(analyzers.BandwidthWeighted), 0)

	var (
		wg        sync.WaitGroup
		envelopes []analyzers.EnvelopeRecord
		levels    []analyzers.LoudnessRecord
		spectra   []analyzers.SpectralRecord
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		for r := range envelope.Results() {
			envelopes = append(envelopes, r)
		}
	}()
	go func() {
		defer wg.Done()
		for r := range loudness.Results() {
			levels = append(levels, r)
		}
	}()
	go func() {
		defer wg.Done()
		for r := range spectral.Results() {
			spectra = append(spectra, r)
		}
	}()

	result, err := s.session.Run(context.Background(), s.clip(1024), envelope, loudness, spectral)
	s.Require().NoError(err)
	wg.Wait()

	s.Equal(4, result.Buffers)
	s.Equal(int64(4096), result.Samples)
	s.Zero(result.Dropped)

	s.Require().Len(envelopes, 5)
	s.Require().Len(levels, 5)
	s.Require().Len(spectra, 5)

	for i := range 4 {
		s.Equal(int64(i*1024), envelopes[i].Timestamp)
		s.Equal(float32(-0.5), envelopes[i].Min)
		s.Equal(int64(i*1024), levels[i].Timestamp)
		s.Equal(analyzers.EstimateLoudness(audio.NewSampleBuffer(s.samples[i*1024:(i+1)*1024], int64(i*1024), 16000)), levels[i])
		s.Greater(spectra[i].DominantFrequencyHz, 0.0)
	}

	s.True(envelopes[4].IsZero())
	s.Equal(analyzers.ZeroLoudness(), levels[4])
	s.Equal(analyzers.ZeroSpectrum(), spectra[4])

	s.Equal(StateIdle, s.session.State().Kind)
}

func (s *SessionTestSuite) TestSubsequentAnalyzerRunsOnce() {
	calls := 0
	var seen int
	summary := NewSubsequentAnalyzer("count", func(bufs []audio.SampleBuffer) (int, error) {
		calls++
		for _, b := range bufs {
			seen += b.Len()
		}
		return len(bufs), nil
	})

	_, err := s.session.Run(context.Background(), s.clip(512), summary)
	s.Require().NoError(err)

	got, ok := summary.Result()
	s.True(ok)
	s.Equal(8, got)
	s.Equal(1, calls)
	s.Equal(4096, seen)
}

func (s *SessionTestSuite) TestLoudnessSummaryMatchesWholeRecording() {
	est := analyzers.NewLoudnessEstimator(analyzers.DefaultFloorDB)
	summary := NewLoudnessSummary(est)

	_, err := s.session.Run(context.Background(), s.clip(1024), summary)
	s.Require().NoError(err)

	got, ok := summary.Result()
	s.Require().True(ok)
	want := est.Estimate(audio.NewSampleBuffer(s.samples, 0, 16000))
	s.InDelta(want.RMSAmplitude, got.RMSAmplitude, 1e-9)
	s.InDelta(want.Decibels, got.Decibels, 1e-9)
	s.Equal(want.PeakAmplitude, got.PeakAmplitude)
}

func (s *SessionTestSuite) TestRecordingSinkWritesDecodableFile() {
	path := filepath.Join(s.T().TempDir(), "take.wav")
	w, err := wav.Create(path, wav.DefaultFormat())
	s.Require().NoError(err)

	_, err = s.session.Run(context.Background(), s.clip(1000), NewRecordingSink(w))
	s.Require().NoError(err)

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	decoded, err := wav.Decode(data)
	s.Require().NoError(err)

	// padding rounds the last frame up to 1000 samples
	s.Require().Len(decoded, 5000)
	for i, want := range s.samples {
		s.InDelta(want, decoded[i], 1.0/32767+1e-6)
	}
	for _, pad := range decoded[4096:] {
		s.Zero(pad)
	}
}

func (s *SessionTestSuite) TestRecordingSinkCopiesMonoToEveryChannel() {
	path := filepath.Join(s.T().TempDir(), "stereo.wav")
	w, err := wav.Create(path, wav.Format{SampleRate: 16000, Channels: 2, BitsPerSample: 16})
	s.Require().NoError(err)

	_, err = s.session.Run(context.Background(), s.clip(1024), NewRecordingSink(w))
	s.Require().NoError(err)

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	decoded, format, err := wav.DecodeStrict(data)
	s.Require().NoError(err)
	s.Equal(uint16(2), format.Channels)

	s.Require().Len(decoded, 2*4096)
	for i, want := range s.samples {
		s.InDelta(want, decoded[2*i], 1.0/32767+1e-6)
		s.Equal(decoded[2*i], decoded[2*i+1])
	}
}

func (s *SessionTestSuite) TestConsumerFailureMovesToErrorState() {
	var states []State
	var mu sync.Mutex
	s.session.OnStateChange(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	})

	// 1000 is not a power of two
	spectral := NewSpectralAnalyzer(analyzers.NewSpectralEstimator(""), 16)
	go func() {
		for range spectral.Results() {
		}
	}()

	_, err := s.session.Run(context.Background(), s.clip(1000), spectral)
	s.Require().Error(err)
	s.ErrorIs(err, audio.ErrUnsupportedBufferSize)

	st := s.session.State()
	s.Equal(StateError, st.Kind)
	s.NotEmpty(st.Message)

	mu.Lock()
	defer mu.Unlock()
	s.Require().NotEmpty(states)
	s.Equal(StateStreaming, states[0].Kind)
	s.Equal(StateError, states[len(states)-1].Kind)
}

func (s *SessionTestSuite) TestSourceFailure() {
	boom := errors.New("device unplugged")
	_, err := s.session.Run(context.Background(), failingSource{err: boom})
	s.ErrorIs(err, boom)
	s.Equal(StateError, s.session.State().Kind)

	// a failed session can run again
	_, err = s.session.Run(context.Background(), NewSliceSource())
	s.NoError(err)
	s.Equal(StateIdle, s.session.State().Kind)
}

func (s *SessionTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.session.Run(ctx, s.clip(1024), NewEnvelopeAnalyzer(8))
	s.ErrorIs(err, context.Canceled)
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

type failingSource struct{ err error }

func (f failingSource) Next(context.Context) (audio.SampleBuffer, error) {
	return audio.SampleBuffer{}, f.err
}

type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) Next(ctx context.Context) (audio.SampleBuffer, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return audio.SampleBuffer{}, ctx.Err()
}

func TestSessionRejectsConcurrentRun(t *testing.T) {
	session := NewSession()
	src := &blockingSource{started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := session.Run(ctx, src)
		errs <- err
	}()

	<-src.started
	assert.Equal(t, StateStreaming, session.State().Kind)

	_, err := session.Run(context.Background(), NewSliceSource())
	assert.ErrorIs(t, err, ErrSessionBusy)

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
}

func TestSessionRejectsNilSource(t *testing.T) {
	_, err := NewSession().Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", State{}.String())
	assert.Equal(t, "streaming(4096)", State{Kind: StateStreaming, SampleTime: 4096}.String())
	assert.Equal(t, "error(boom)", State{Kind: StateError, Message: "boom"}.String())
}
