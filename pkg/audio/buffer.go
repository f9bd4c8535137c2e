// Package audio holds the sample buffer type handed from a capture source to
// the analyzers, plus the error taxonomy shared by the audio packages.
package audio

import "time"

// SampleBuffer is one block of mono float samples delivered by a capture source.
//
// Samples is nil when the source could not materialize channel data; a non-nil
// empty slice is a zero-length buffer. Buffers are treated as immutable once
// produced and analyzers never keep a reference past the call.
type SampleBuffer struct {
	Samples      []float32 `json:"samples"`
	Timestamp    int64     `json:"timestamp"` // capture-clock sample index of the first sample
	FrameLength  uint32    `json:"frame_length"`
	ChannelCount uint32    `json:"channel_count"`
	SampleRate   float64   `json:"sample_rate"`
}

// NewSampleBuffer builds a single-channel buffer whose frame length matches the sample count
func NewSampleBuffer(samples []float32, timestamp int64, sampleRate float64) SampleBuffer {
	return SampleBuffer{
		Samples:      samples,
		Timestamp:    timestamp,
		FrameLength:  uint32(len(samples)),
		ChannelCount: 1,
		SampleRate:   sampleRate,
	}
}

// HasData reports whether the buffer carries accessible sample data
func (b SampleBuffer) HasData() bool {
	return b.Samples != nil
}

// Len returns the number of samples
func (b SampleBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playback duration of the buffer, or 0 when the rate is unknown
func (b SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / b.SampleRate * float64(time.Second))
}

// Float64 returns a float64 copy of the samples
func (b SampleBuffer) Float64() []float64 {
	out := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = float64(s)
	}
	return out
}
