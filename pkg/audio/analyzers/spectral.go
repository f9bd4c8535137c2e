package analyzers

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
	"github.com/RyanBlaney/micmetrics/pkg/logging"
)

// BandwidthMode selects the spectral bandwidth definition
type BandwidthMode string

const (
	// BandwidthWeighted is the magnitude-weighted standard deviation of bin frequency around the centroid
	BandwidthWeighted BandwidthMode = "weighted"
	// BandwidthReference spreads the weighted bin index (magnitude*i) around the centroid in Hz,
	// computed over the packed real-FFT spectrum (see PackedPowerSpectrum) so values match
	// recordings analyzed by the earlier capture app.
	BandwidthReference BandwidthMode = "reference"
)

// ParseBandwidthMode converts a config value into a BandwidthMode
func ParseBandwidthMode(s string) (BandwidthMode, error) {
	switch BandwidthMode(s) {
	case BandwidthWeighted, "":
		return BandwidthWeighted, nil
	case BandwidthReference:
		return BandwidthReference, nil
	default:
		return "", audio.NewAudioError(audio.ErrCodeInvalidArgument, "ParseBandwidthMode",
			fmt.Sprintf("unknown bandwidth mode %q", s), nil)
	}
}

// SpectralRecord holds frequency-domain features of one buffer
type SpectralRecord struct {
	Timestamp           int64   `json:"timestamp" yaml:"timestamp"`
	DominantFrequencyHz float64 `json:"dominant_frequency_hz" yaml:"dominant_frequency_hz"`
	SpectralCentroidHz  float64 `json:"spectral_centroid_hz" yaml:"spectral_centroid_hz"`
	SpectralBandwidthHz float64 `json:"spectral_bandwidth_hz" yaml:"spectral_bandwidth_hz"`
}

// ZeroSpectrum returns the "no data" spectral record
func ZeroSpectrum() SpectralRecord {
	return SpectralRecord{}
}

func (r SpectralRecord) String() string {
	return fmt.Sprintf("%d frequency=%.1f spectralCentroid=%.1f spectralBandwidth=%.1f",
		r.Timestamp, r.DominantFrequencyHz, r.SpectralCentroidHz, r.SpectralBandwidthHz)
}

// SpectralEstimator provides FFT-based spectral features
type SpectralEstimator struct {
	bandwidth BandwidthMode
	logger    logging.Logger
}

// NewSpectralEstimator creates a new spectral estimator
func NewSpectralEstimator(mode BandwidthMode) *SpectralEstimator {
	if mode == "" {
		mode = BandwidthWeighted
	}
	return &SpectralEstimator{
		bandwidth: mode,
		logger: logging.WithFields(logging.Fields{
			"component":      "spectral_estimator",
			"bandwidth_mode": string(mode),
		}),
	}
}

// EstimateSpectrum runs a weighted-bandwidth estimator over buf
func EstimateSpectrum(buf audio.SampleBuffer, sampleRateHz float64) (SpectralRecord, error) {
	return NewSpectralEstimator(BandwidthWeighted).Estimate(buf, sampleRateHz)
}

// Estimate computes dominant frequency, spectral centroid and spectral bandwidth of buf.
//
// The sample count must be a power of two. Empty buffers and buffers without
// data give the zero record with the timestamp kept.
func (se *SpectralEstimator) Estimate(buf audio.SampleBuffer, sampleRateHz float64) (SpectralRecord, error) {
	rec := SpectralRecord{Timestamp: buf.Timestamp}

	n := len(buf.Samples)
	if n == 0 {
		return rec, nil
	}
	if !audio.IsPowerOfTwo(n) {
		return rec, audio.NewAudioError(audio.ErrCodeUnsupportedBufferSize, "SpectralEstimator.Estimate",
			fmt.Sprintf("buffer length %d is not a power of two", n), nil)
	}
	if math.IsNaN(sampleRateHz) || sampleRateHz <= 0 {
		return rec, audio.NewAudioError(audio.ErrCodeInvalidArgument, "SpectralEstimator.Estimate",
			fmt.Sprintf("sample rate must be positive, got %v", sampleRateHz), nil)
	}

	var magnitudes []float64
	if se.bandwidth == BandwidthReference {
		magnitudes = se.PackedPowerSpectrum(buf.Float64())
	} else {
		magnitudes = se.PowerSpectrum(buf.Float64())
	}
	if len(magnitudes) == 0 {
		return rec, nil
	}

	binWidth := sampleRateHz / float64(n)

	dominant := floats.MaxIdx(magnitudes)
	rec.DominantFrequencyHz = float64(dominant) * binWidth

	sumOfWeights := floats.Sum(magnitudes)
	if sumOfWeights == 0 {
		return rec, nil
	}

	indices := make([]float64, len(magnitudes))
	for i := range indices {
		indices[i] = float64(i)
	}
	weighted := make([]float64, len(magnitudes))
	floats.MulTo(weighted, magnitudes, indices)

	centroid := floats.Sum(weighted) / sumOfWeights * binWidth
	rec.SpectralCentroidHz = centroid

	switch se.bandwidth {
	case BandwidthReference:
		rec.SpectralBandwidthHz = referenceBandwidth(weighted, centroid, sumOfWeights)
	default:
		rec.SpectralBandwidthHz = weightedBandwidth(magnitudes, binWidth, centroid, sumOfWeights)
	}

	se.logger.Debug("Spectrum estimated", logging.Fields{
		"timestamp":   buf.Timestamp,
		"buffer_size": n,
		"dominant_hz": rec.DominantFrequencyHz,
		"centroid_hz": rec.SpectralCentroidHz,
	})

	return rec, nil
}

// PowerSpectrum returns |X[k]|^2 / sqrt(N) for bins 0..N/2-1 of the real FFT of x
func (se *SpectralEstimator) PowerSpectrum(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return nil
	}

	spectrum := fft.FFTReal(x)
	norm := 1.0 / math.Sqrt(float64(n))

	magnitudes := make([]float64, n/2)
	for i := range magnitudes {
		re, im := real(spectrum[i]), imag(spectrum[i])
		magnitudes[i] = (re*re + im*im) * norm
	}
	return magnitudes
}

// PackedPowerSpectrum returns the power spectrum in the packed real-FFT layout:
// the forward transform is scaled by 2, and bin 0 carries DC and Nyquist
// together as (2*X[0])^2 + (2*X[N/2])^2. Every bin is scaled by 1/sqrt(N).
func (se *SpectralEstimator) PackedPowerSpectrum(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return nil
	}

	spectrum := fft.FFTReal(x)
	norm := 4.0 / math.Sqrt(float64(n))

	magnitudes := make([]float64, n/2)
	for i := range magnitudes {
		re, im := real(spectrum[i]), imag(spectrum[i])
		magnitudes[i] = (re*re + im*im) * norm
	}
	dc, nyquist := real(spectrum[0]), real(spectrum[n/2])
	magnitudes[0] = (dc*dc + nyquist*nyquist) * norm
	return magnitudes
}

// weightedBandwidth is sqrt(sum(m_i * (f_i - centroid)^2) / sum(m_i)) with f_i in Hz
func weightedBandwidth(magnitudes []float64, binWidth, centroid, sumOfWeights float64) float64 {
	acc := 0.0
	for i, m := range magnitudes {
		diff := float64(i)*binWidth - centroid
		acc += m * diff * diff
	}
	return math.Sqrt(acc / sumOfWeights)
}

// referenceBandwidth is sqrt(sum((m_i*i - centroid)^2) / sum(m_i))
func referenceBandwidth(weighted []float64, centroid, sumOfWeights float64) float64 {
	acc := 0.0
	for _, w := range weighted {
		diff := w - centroid
		acc += diff * diff
	}
	return math.Sqrt(acc / sumOfWeights)
}
