// Package wav encodes and decodes canonical 16-bit PCM WAV data.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

const (
	// HeaderSize is the size of the canonical RIFF/WAVE header
	HeaderSize = 44

	// AudioFormatPCM is the WAVE format tag for uncompressed PCM
	AudioFormatPCM = 1

	fmtChunkSize = 16
	riffOverhead = HeaderSize - 8
)

// Format describes the PCM layout of a WAV stream
type Format struct {
	SampleRate    uint32 `json:"sample_rate" yaml:"sample_rate"`
	Channels      uint16 `json:"channels" yaml:"channels"`
	BitsPerSample uint16 `json:"bits_per_sample" yaml:"bits_per_sample"`
}

// DefaultFormat is 16 kHz mono 16-bit, the layout speech models expect
func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// BlockAlign returns the bytes per frame
func (f Format) BlockAlign() uint16 {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the bytes per second
func (f Format) ByteRate() uint32 {
	return f.SampleRate * uint32(f.BlockAlign())
}

// Validate checks that the format can be written by this package
func (f Format) Validate() error {
	switch {
	case f.SampleRate == 0:
		return audio.NewAudioError(audio.ErrCodeInvalidArgument, "wav.Format", "sample rate must be positive", nil)
	case f.Channels == 0:
		return audio.NewAudioError(audio.ErrCodeInvalidArgument, "wav.Format", "channel count must be positive", nil)
	case f.BitsPerSample != 16:
		return audio.NewAudioError(audio.ErrCodeInvalidArgument, "wav.Format",
			fmt.Sprintf("only 16-bit PCM is supported, got %d bits", f.BitsPerSample), nil)
	}
	return nil
}

// Header is the 44-byte canonical WAV header, laid out field for field
type Header struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	WaveID        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// NewHeader builds the header for dataSize bytes of PCM payload
func NewHeader(format Format, dataSize uint32) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     riffOverhead + dataSize,
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       fmtChunkSize,
		AudioFormat:   AudioFormatPCM,
		NumChannels:   format.Channels,
		SampleRate:    format.SampleRate,
		ByteRate:      format.ByteRate(),
		BlockAlign:    format.BlockAlign(),
		BitsPerSample: format.BitsPerSample,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
}

// Format returns the PCM layout described by the header
func (h Header) Format() Format {
	return Format{
		SampleRate:    h.SampleRate,
		Channels:      h.NumChannels,
		BitsPerSample: h.BitsPerSample,
	}
}

// MarshalBinary encodes the header little-endian
func (h Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseHeader reads and validates the canonical header at the start of data
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader",
			fmt.Sprintf("need %d header bytes, got %d", HeaderSize, len(data)), nil)
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader", "unreadable header", err)
	}

	switch {
	case string(h.ChunkID[:]) != "RIFF" || string(h.WaveID[:]) != "WAVE":
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader", "not a RIFF/WAVE stream", nil)
	case string(h.FmtID[:]) != "fmt " || h.FmtSize != fmtChunkSize:
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader", "unexpected fmt chunk", nil)
	case h.AudioFormat != AudioFormatPCM:
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader",
			fmt.Sprintf("audio format %d is not PCM", h.AudioFormat), nil)
	case h.BitsPerSample != 16:
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader",
			fmt.Sprintf("%d-bit samples are not supported", h.BitsPerSample), nil)
	case string(h.DataID[:]) != "data":
		return h, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ParseHeader", "data chunk does not follow fmt chunk", nil)
	}
	return h, nil
}
