package wav

import (
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// Clip is a fully decoded WAV file
type Clip struct {
	Samples    []float32 `json:"-"` // interleaved when Channels > 1
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	BitDepth   int       `json:"bit_depth"`
}

// Frames returns the number of sample frames
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Mono returns the clip downmixed to a single channel by averaging
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	frames := c.Frames()
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range c.Channels {
			sum += c.Samples[i*c.Channels+ch]
		}
		mono[i] = sum / float32(c.Channels)
	}
	return mono
}

// ReadFile decodes any integer PCM WAV file, tolerating extra chunks and
// non-canonical layouts. Samples are scaled to [-1, 1].
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	decoder := gowav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ReadFile",
			fmt.Sprintf("%s is not a valid PCM WAV file", path), decoder.Err())
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ReadFile",
			"could not read PCM buffer", err)
	}

	return clipFromIntBuffer(buf, int(decoder.BitDepth))
}

func clipFromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (*Clip, error) {
	if buf == nil || buf.Format == nil {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ReadFile", "missing format", nil)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, audio.NewAudioError(audio.ErrCodeMalformedInput, "wav.ReadFile",
			fmt.Sprintf("unsupported bit depth %d", bitDepth), nil)
	}

	// 8-bit WAV is unsigned with a 128 midpoint
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	scale := float64(int64(1)<<(bitDepth-1)) - 1

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = audio.Clamp(float32(float64(v-offset) / scale))
	}

	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   bitDepth,
	}, nil
}
