// Package analyzers implements the per-buffer audio metrics: min/max envelope,
// loudness and FFT-based spectral features. Every function here is pure and
// may be called from any goroutine.
package analyzers

import (
	"fmt"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// EnvelopeRecord holds the min/max amplitude of one buffer, used for waveform drawing
type EnvelopeRecord struct {
	Min          float32   `json:"min" yaml:"min"`
	Max          float32   `json:"max" yaml:"max"`
	Timestamp    int64     `json:"timestamp" yaml:"timestamp"`
	FrameLength  uint32    `json:"frame_length" yaml:"frame_length"`
	ChannelCount uint32    `json:"channel_count" yaml:"channel_count"`
	Samples      []float32 `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// ZeroEnvelope returns the "no data" envelope emitted when a stream ends
func ZeroEnvelope() EnvelopeRecord {
	return EnvelopeRecord{Samples: []float32{}}
}

// IsZero reports whether r carries no data
func (r EnvelopeRecord) IsZero() bool {
	return r.Min == 0 && r.Max == 0 && r.Timestamp == 0 &&
		r.FrameLength == 0 && r.ChannelCount == 0 && len(r.Samples) == 0
}

func (r EnvelopeRecord) String() string {
	return fmt.Sprintf("%d channels=%d length=%d min=%g max=%g",
		r.Timestamp, r.ChannelCount, r.FrameLength, r.Min, r.Max)
}

// ExtractEnvelope computes the min/max amplitude of buf.
//
// Both bounds start at 0, so a buffer that never crosses zero still reports 0
// for one of them. Waveform views rely on that and it must not be "fixed".
func ExtractEnvelope(buf audio.SampleBuffer) EnvelopeRecord {
	rec := EnvelopeRecord{
		Timestamp:    buf.Timestamp,
		FrameLength:  buf.FrameLength,
		ChannelCount: buf.ChannelCount,
	}
	if !buf.HasData() {
		rec.Samples = []float32{}
		return rec
	}

	var lo, hi float32
	for _, s := range buf.Samples {
		lo = min(lo, s)
		hi = max(hi, s)
	}

	rec.Min = lo
	rec.Max = hi
	rec.Samples = append(make([]float32, 0, len(buf.Samples)), buf.Samples...)
	return rec
}
