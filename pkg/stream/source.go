package stream

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// Source produces sample buffers in order. Next returns io.EOF once the
// stream is exhausted.
type Source interface {
	Next(ctx context.Context) (audio.SampleBuffer, error)
}

// ClipSource slices a decoded recording into fixed-size frames.
// Buffer timestamps are the sample offset of the first sample in the frame.
type ClipSource struct {
	samples    []float32
	sampleRate float64
	frameSize  int
	pad        bool
	pos        int
}

// NewClipSource creates a source over mono samples. With pad set, a short
// final frame is zero-filled to frameSize so every buffer has the same length.
func NewClipSource(samples []float32, sampleRate float64, frameSize int, pad bool) (*ClipSource, error) {
	if frameSize <= 0 {
		return nil, NewStreamError(ErrCodeInvalidConfig, fmt.Sprintf("frame size must be positive, got %d", frameSize), nil)
	}
	if !(sampleRate > 0) {
		return nil, NewStreamError(ErrCodeInvalidConfig, fmt.Sprintf("sample rate must be positive, got %v", sampleRate), nil)
	}
	return &ClipSource{
		samples:    samples,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		pad:        pad,
	}, nil
}

// Next returns the next frame
func (s *ClipSource) Next(ctx context.Context) (audio.SampleBuffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.SampleBuffer{}, err
	}
	if s.pos >= len(s.samples) {
		return audio.SampleBuffer{}, io.EOF
	}

	end := min(s.pos+s.frameSize, len(s.samples))
	size := end - s.pos
	if s.pad {
		size = s.frameSize
	}

	frame := make([]float32, size)
	copy(frame, s.samples[s.pos:end])

	buf := audio.NewSampleBuffer(frame, int64(s.pos), s.sampleRate)
	s.pos = end
	return buf, nil
}

// ToneSource generates a sine wave, used to exercise the pipeline without
// an input file.
type ToneSource struct {
	FrequencyHz float64
	Amplitude   float64

	sampleRate float64
	frameSize  int
	total      int
	pos        int
}

// NewToneSource creates a sine source of the given duration at amplitude 0.5
func NewToneSource(frequencyHz, sampleRate float64, frameSize int, duration time.Duration) (*ToneSource, error) {
	if frameSize <= 0 {
		return nil, NewStreamError(ErrCodeInvalidConfig, fmt.Sprintf("frame size must be positive, got %d", frameSize), nil)
	}
	if !(sampleRate > 0) {
		return nil, NewStreamError(ErrCodeInvalidConfig, fmt.Sprintf("sample rate must be positive, got %v", sampleRate), nil)
	}
	if frequencyHz < 0 || frequencyHz > sampleRate/2 {
		return nil, NewStreamError(ErrCodeInvalidConfig,
			fmt.Sprintf("tone frequency %.1f Hz is outside 0..%.1f Hz", frequencyHz, sampleRate/2), nil)
	}
	if duration <= 0 {
		return nil, NewStreamError(ErrCodeInvalidConfig, "tone duration must be positive", nil)
	}

	return &ToneSource{
		FrequencyHz: frequencyHz,
		Amplitude:   0.5,
		sampleRate:  sampleRate,
		frameSize:   frameSize,
		total:       int(math.Round(duration.Seconds() * sampleRate)),
	}, nil
}

// Next returns the next generated frame. The final frame may be short.
func (s *ToneSource) Next(ctx context.Context) (audio.SampleBuffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.SampleBuffer{}, err
	}
	if s.pos >= s.total {
		return audio.SampleBuffer{}, io.EOF
	}

	n := min(s.frameSize, s.total-s.pos)
	frame := make([]float32, n)
	step := 2 * math.Pi * s.FrequencyHz / s.sampleRate
	for i := range frame {
		frame[i] = float32(s.Amplitude * math.Sin(step*float64(s.pos+i)))
	}

	buf := audio.NewSampleBuffer(frame, int64(s.pos), s.sampleRate)
	s.pos += n
	return buf, nil
}

// SliceSource replays prepared buffers
type SliceSource struct {
	buffers []audio.SampleBuffer
	next    int
}

// NewSliceSource creates a source that yields buffers in order
func NewSliceSource(buffers ...audio.SampleBuffer) *SliceSource {
	return &SliceSource{buffers: buffers}
}

// Next returns the next prepared buffer
func (s *SliceSource) Next(ctx context.Context) (audio.SampleBuffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.SampleBuffer{}, err
	}
	if s.next >= len(s.buffers) {
		return audio.SampleBuffer{}, io.EOF
	}
	buf := s.buffers[s.next]
	s.next++
	return buf, nil
}
