package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
	"github.com/RyanBlaney/micmetrics/pkg/audio/wav"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
)

// Consumer reads buffers until the channel is closed or ctx ends
type Consumer interface {
	Consume(ctx context.Context, in <-chan audio.SampleBuffer) error
}

// AnalyzeFunc turns one buffer into one record
type AnalyzeFunc[T any] func(audio.SampleBuffer) (T, error)

// BatchFunc turns a whole recording into one record
type BatchFunc[T any] func([]audio.SampleBuffer) (T, error)

// SequentAnalyzer emits one record per buffer on Results. At end of stream
// it emits the zero record and closes Results.
type SequentAnalyzer[T any] struct {
	name    string
	analyze AnalyzeFunc[T]
	zero    func() T
	results chan T
	logger  logging.Logger
}

// NewSequentAnalyzer creates a per-buffer analyzer. Results must be drained
// while the analyzer runs unless buffer covers the whole stream.
func NewSequentAnalyzer[T any](name string, analyze AnalyzeFunc[T], zero func() T, buffer int) *SequentAnalyzer[T] {
	return &SequentAnalyzer[T]{
		name:    name,
		analyze: analyze,
		zero:    zero,
		results: make(chan T, max(buffer, 0)),
		logger: logging.WithFields(logging.Fields{
			"component": "sequent_analyzer",
			"analyzer":  name,
		}),
	}
}

// Name returns the analyzer name
func (a *SequentAnalyzer[T]) Name() string {
	return a.name
}

// Results returns the record channel
func (a *SequentAnalyzer[T]) Results() <-chan T {
	return a.results
}

// Consume implements Consumer
func (a *SequentAnalyzer[T]) Consume(ctx context.Context, in <-chan audio.SampleBuffer) error {
	defer close(a.results)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-in:
			if !ok {
				a.logger.Debug("Stream ended", logging.Fields{"buffers": count})
				return a.emit(ctx, a.zero())
			}

			rec, err := a.analyze(buf)
			if err != nil {
				return NewStreamError(ErrCodeConsumer,
					fmt.Sprintf("%s analyzer failed on buffer at %d", a.name, buf.Timestamp), err)
			}
			if err := a.emit(ctx, rec); err != nil {
				return err
			}
			count++
		}
	}
}

func (a *SequentAnalyzer[T]) emit(ctx context.Context, rec T) error {
	select {
	case a.results <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubsequentAnalyzer accumulates the whole stream and analyzes it once at
// end of stream.
type SubsequentAnalyzer[T any] struct {
	name    string
	analyze BatchFunc[T]

	mu      sync.Mutex
	result  T
	done    bool
	buffers []audio.SampleBuffer
}

// NewSubsequentAnalyzer creates a whole-recording analyzer
func NewSubsequentAnalyzer[T any](name string, analyze BatchFunc[T]) *SubsequentAnalyzer[T] {
	return &SubsequentAnalyzer[T]{name: name, analyze: analyze}
}

// Name returns the analyzer name
func (a *SubsequentAnalyzer[T]) Name() string {
	return a.name
}

// Consume implements Consumer
func (a *SubsequentAnalyzer[T]) Consume(ctx context.Context, in <-chan audio.SampleBuffer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-in:
			if ok {
				a.mu.Lock()
				a.buffers = append(a.buffers, buf)
				a.mu.Unlock()
				continue
			}

			a.mu.Lock()
			defer a.mu.Unlock()
			rec, err := a.analyze(a.buffers)
			a.buffers = nil
			if err != nil {
				return NewStreamError(ErrCodeConsumer, fmt.Sprintf("%s analyzer failed", a.name), err)
			}
			a.result = rec
			a.done = true
			return nil
		}
	}
}

// Result returns the record once the stream has ended
func (a *SubsequentAnalyzer[T]) Result() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.done
}

// RecordingSink appends every buffer to a WAV writer and finalizes the file
// at end of stream. Buffers are mono; when the writer's format has more
// channels each sample is copied to every channel.
type RecordingSink struct {
	writer  *wav.Writer
	logger  logging.Logger
	scratch []float32
}

// NewRecordingSink takes ownership of w; the sink closes it
func NewRecordingSink(w *wav.Writer) *RecordingSink {
	return &RecordingSink{
		writer: w,
		logger: logging.WithFields(logging.Fields{
			"component": "recording_sink",
		}),
	}
}

// Consume implements Consumer. The writer is closed on every exit path so a
// cancelled recording still leaves a valid file.
func (r *RecordingSink) Consume(ctx context.Context, in <-chan audio.SampleBuffer) (err error) {
	defer func() {
		if cerr := r.writer.Close(); cerr != nil && err == nil {
			err = NewStreamError(ErrCodeConsumer, "failed to finalize recording", cerr)
		}
		r.logger.Debug("Recording finalized", logging.Fields{
			"samples": r.writer.SamplesWritten(),
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.writer.Write(r.interleave(buf.Samples)); err != nil {
				return NewStreamError(ErrCodeConsumer, "failed to append buffer to recording", err)
			}
		}
	}
}

func (r *RecordingSink) interleave(samples []float32) []float32 {
	channels := int(r.writer.Format().Channels)
	if channels <= 1 {
		return samples
	}

	n := len(samples) * channels
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	out := r.scratch[:n]
	for i, s := range samples {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

// NewEnvelopeAnalyzer wires the envelope extractor as a sequent analyzer
func NewEnvelopeAnalyzer(buffer int) *SequentAnalyzer[analyzers.EnvelopeRecord] {
	return NewSequentAnalyzer("envelope", func(buf audio.SampleBuffer) (analyzers.EnvelopeRecord, error) {
		return analyzers.ExtractEnvelope(buf), nil
	}, analyzers.ZeroEnvelope, buffer)
}

// NewLoudnessAnalyzer wires a loudness estimator as a sequent analyzer
func NewLoudnessAnalyzer(est *analyzers.LoudnessEstimator, buffer int) *SequentAnalyzer[analyzers.LoudnessRecord] {
	return NewSequentAnalyzer("loudness", func(buf audio.SampleBuffer) (analyzers.LoudnessRecord, error) {
		return est.Estimate(buf), nil
	}, analyzers.ZeroLoudness, buffer)
}

// NewSpectralAnalyzer wires a spectral estimator as a sequent analyzer.
// The rate is taken from each buffer.
func NewSpectralAnalyzer(est *analyzers.SpectralEstimator, buffer int) *SequentAnalyzer[analyzers.SpectralRecord] {
	return NewSequentAnalyzer("spectral", func(buf audio.SampleBuffer) (analyzers.SpectralRecord, error) {
		return est.Estimate(buf, buf.SampleRate)
	}, analyzers.ZeroSpectrum, buffer)
}

// NewLoudnessSummary wires a loudness estimator over the whole recording
func NewLoudnessSummary(est *analyzers.LoudnessEstimator) *SubsequentAnalyzer[analyzers.LoudnessRecord] {
	return NewSubsequentAnalyzer("loudness_summary", func(bufs []audio.SampleBuffer) (analyzers.LoudnessRecord, error) {
		return est.SummarizeLoudness(bufs), nil
	})
}
