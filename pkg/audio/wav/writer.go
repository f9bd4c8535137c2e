package wav

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// Writer streams PCM samples into a WAV container.
//
// Writes are append-only and the header sizes are patched on Close. A Writer
// is not safe for concurrent use: the owner serializes calls.
type Writer struct {
	ws        io.WriteSeeker
	closer    io.Closer
	format    Format
	dataBytes uint32
	closed    bool
	err       error
	scratch   []byte
}

// NewWriter writes a placeholder header to ws and returns a Writer appending after it
func NewWriter(ws io.WriteSeeker, format Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{ws: ws, format: format}
	if err := w.writeHeader(); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

// Create creates (or truncates) the file at path, including missing parent
// directories, and returns a Writer that closes the file on Close.
func Create(path string, format Format) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	w, err := NewWriter(f, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Format returns the layout being written
func (w *Writer) Format() Format {
	return w.format
}

// SamplesWritten returns the number of samples appended so far
func (w *Writer) SamplesWritten() int {
	return int(w.dataBytes / 2)
}

// Write appends samples to the data chunk. After a failed write the Writer
// keeps returning that error; Close still patches the header with the bytes
// actually written.
func (w *Writer) Write(samples []float32) error {
	if w.closed {
		return audio.NewAudioError(audio.ErrCodeInvalidArgument, "wav.Writer.Write", "writer is closed", nil)
	}
	if w.err != nil {
		return w.err
	}
	if len(samples) == 0 {
		return nil
	}

	size := uint64(len(samples)) * 2
	if uint64(w.dataBytes)+size > 0xFFFFFFFF-riffOverhead {
		return audio.NewAudioError(audio.ErrCodeResourceExhausted, "wav.Writer.Write",
			"recording exceeds the 4 GiB WAV limit", nil)
	}

	if cap(w.scratch) < int(size) {
		w.scratch = make([]byte, size)
	}
	buf := w.scratch[:size]
	putSamples(buf, samples)

	n, err := w.ws.Write(buf)
	w.dataBytes += uint32(n)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = fmt.Errorf("failed to write samples: %w", err)
		return w.err
	}
	return nil
}

// WriteBuffer appends the samples of buf. Buffers without data are skipped.
func (w *Writer) WriteBuffer(buf audio.SampleBuffer) error {
	return w.Write(buf.Samples)
}

// Close patches the header with the final sizes and closes the underlying file, if any
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finalize()
	if err == nil {
		err = w.err
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}
	return err
}

func (w *Writer) finalize() error {
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to header: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		return fmt.Errorf("failed to rewrite WAV header: %w", err)
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	return nil
}

func (w *Writer) writeHeader() error {
	header, err := NewHeader(w.format, w.dataBytes).MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.ws.Write(header)
	return err
}
