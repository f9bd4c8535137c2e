package analyzers

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// DefaultFloorDB is the decibel value reported for digital silence
const DefaultFloorDB = -120.0

// LoudnessRecord holds the loudness metrics of one buffer
type LoudnessRecord struct {
	Timestamp     int64   `json:"timestamp" yaml:"timestamp"`
	Decibels      float64 `json:"decibels" yaml:"decibels"`
	PeakAmplitude float64 `json:"peak_amplitude" yaml:"peak_amplitude"`
	RMSAmplitude  float64 `json:"rms_amplitude" yaml:"rms_amplitude"`
}

// ZeroLoudness returns the "no data" loudness record
func ZeroLoudness() LoudnessRecord {
	return LoudnessRecord{}
}

func (r LoudnessRecord) String() string {
	return fmt.Sprintf("%d dB=%.2f peak=%.4f rms=%.4f", r.Timestamp, r.Decibels, r.PeakAmplitude, r.RMSAmplitude)
}

// LoudnessEstimator computes peak, RMS and dBFS for a buffer.
// Decibels never drop below FloorDB, so silence yields FloorDB instead of -Inf.
type LoudnessEstimator struct {
	FloorDB float64
}

// NewLoudnessEstimator creates an estimator with the given silence floor.
// A non-negative or NaN floor falls back to DefaultFloorDB.
func NewLoudnessEstimator(floorDB float64) *LoudnessEstimator {
	if math.IsNaN(floorDB) || floorDB >= 0 {
		floorDB = DefaultFloorDB
	}
	return &LoudnessEstimator{FloorDB: floorDB}
}

// EstimateLoudness runs the estimator with DefaultFloorDB
func EstimateLoudness(buf audio.SampleBuffer) LoudnessRecord {
	return (&LoudnessEstimator{FloorDB: DefaultFloorDB}).Estimate(buf)
}

// Estimate computes the loudness of buf. Zero-length buffers and buffers
// without data give the zero record with the timestamp kept.
func (le *LoudnessEstimator) Estimate(buf audio.SampleBuffer) LoudnessRecord {
	rec := LoudnessRecord{Timestamp: buf.Timestamp}
	if len(buf.Samples) == 0 {
		return rec
	}

	peak := 0.0
	sumSquares := 0.0
	for _, s := range buf.Samples {
		v := float64(s)
		peak = max(peak, math.Abs(v))
		sumSquares += v * v
	}

	rms := math.Sqrt(sumSquares / float64(len(buf.Samples)))

	rec.PeakAmplitude = peak
	rec.RMSAmplitude = rms
	rec.Decibels = le.toDecibels(rms)
	return rec
}

func (le *LoudnessEstimator) toDecibels(amplitude float64) float64 {
	if amplitude <= 0 {
		return le.FloorDB
	}
	return max(20*math.Log10(amplitude/1.0), le.FloorDB)
}

// LinearLevel maps a dBFS value to a 0..1 meter level
func LinearLevel(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	return max(0, min(1, math.Pow(10, db/20)))
}

// SummarizeLoudness computes one loudness record over a whole recording.
// The timestamp is taken from the first buffer.
func (le *LoudnessEstimator) SummarizeLoudness(bufs []audio.SampleBuffer) LoudnessRecord {
	if len(bufs) == 0 {
		return ZeroLoudness()
	}

	rec := LoudnessRecord{Timestamp: bufs[0].Timestamp}
	peak := 0.0
	sumSquares := 0.0
	count := 0
	for _, b := range bufs {
		for _, s := range b.Samples {
			v := float64(s)
			peak = max(peak, math.Abs(v))
			sumSquares += v * v
		}
		count += len(b.Samples)
	}
	if count == 0 {
		return rec
	}

	rms := math.Sqrt(sumSquares / float64(count))
	rec.PeakAmplitude = peak
	rec.RMSAmplitude = rms
	rec.Decibels = le.toDecibels(rms)
	return rec
}
