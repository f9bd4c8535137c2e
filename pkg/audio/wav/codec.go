package wav

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// pcmScale maps [-1, 1] onto the symmetric int16 range
const pcmScale = 32767.0

// Encode writes samples as 16 kHz mono 16-bit PCM WAV bytes
func Encode(samples []float32) []byte {
	data, err := EncodeWithFormat(samples, DefaultFormat())
	if err != nil {
		// DefaultFormat always validates
		panic(err)
	}
	return data
}

// EncodeWithFormat writes samples (interleaved when Channels > 1) as a WAV byte stream.
// Samples are clamped to [-1, 1] and truncated toward zero after scaling by 32767.
func EncodeWithFormat(samples []float32, format Format) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	dataSize := uint64(len(samples)) * 2
	if dataSize > 0xFFFFFFFF-riffOverhead {
		return nil, audio.NewAudioError(audio.ErrCodeResourceExhausted, "wav.Encode",
			fmt.Sprintf("%d samples exceed the 4 GiB WAV limit", len(samples)), nil)
	}

	header, err := NewHeader(format, uint32(dataSize)).MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize+int(dataSize))
	copy(out, header)
	putSamples(out[HeaderSize:], samples)
	return out, nil
}

// Decode reads the 16-bit payload that follows a 44-byte header.
// The header itself is not inspected; use DecodeStrict to validate it.
func Decode(data []byte) ([]float32, error) {
	if len(data) < HeaderSize {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.Decode",
			fmt.Sprintf("%d bytes is shorter than the %d-byte header", len(data), HeaderSize), nil)
	}
	payload := data[HeaderSize:]
	if len(payload)%2 != 0 {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.Decode",
			"payload ends with a truncated sample", nil)
	}

	samples := make([]float32, len(payload)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		samples[i] = audio.Clamp(float32(v) / pcmScale)
	}
	return samples, nil
}

// DecodeStrict validates the header and decodes exactly the declared data chunk
func DecodeStrict(data []byte) ([]float32, Format, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, Format{}, err
	}
	end := uint64(HeaderSize) + uint64(h.DataSize)
	if end > uint64(len(data)) {
		return nil, Format{}, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.DecodeStrict",
			fmt.Sprintf("data chunk declares %d bytes but only %d follow", h.DataSize, len(data)-HeaderSize), nil)
	}
	samples, err := Decode(data[:end])
	if err != nil {
		return nil, Format{}, err
	}
	return samples, h.Format(), nil
}

// EnsureExtension forces a .wav extension on path
func EnsureExtension(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".wav") {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".wav"
}

// quantize converts one float sample to int16, truncating toward zero
func quantize(s float32) int16 {
	return int16(audio.Clamp(s) * pcmScale)
}

func putSamples(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(quantize(s)))
	}
}
