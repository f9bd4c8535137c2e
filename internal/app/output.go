package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/micmetrics/pkg/audio/analyzers"
)

// Formatter renders a report
type Formatter interface {
	Format(data any) ([]byte, error)
}

// Tabular is implemented by reports that render as a table
type Tabular interface {
	// Summary returns key/value lines printed above the table
	Summary() [][2]string
	// Columns returns the table header in snake_case
	Columns() []string
	// Rows returns the table body
	Rows() [][]string
}

// JSONFormatter renders indented JSON
type JSONFormatter struct{}

// Format implements Formatter
func (JSONFormatter) Format(data any) ([]byte, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		var unsupported *json.UnsupportedValueError
		s, ok := data.(jsonSanitizer)
		if !errors.As(err, &unsupported) || !ok {
			return nil, err
		}
		out, err = json.MarshalIndent(s.sanitized(), "", "  ")
		if err != nil {
			return nil, err
		}
	}
	return append(out, '\n'), nil
}

// YAMLFormatter renders YAML
type YAMLFormatter struct{}

// Format implements Formatter
func (YAMLFormatter) Format(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TableFormatter renders Tabular reports as aligned text
type TableFormatter struct{}

// Format implements Formatter
func (TableFormatter) Format(data any) ([]byte, error) {
	t, ok := data.(Tabular)
	if !ok {
		return nil, fmt.Errorf("%T cannot be rendered as a table", data)
	}

	var buf bytes.Buffer
	if err := writeTable(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTable(w io.Writer, t Tabular) error {
	title := cases.Title(language.English)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kv := range t.Summary() {
		fmt.Fprintf(tw, "%s:\t%s\n", title.String(strings.ReplaceAll(kv[0], "_", " ")), kv[1])
	}

	columns := t.Columns()
	if len(columns) > 0 {
		if len(t.Summary()) > 0 {
			fmt.Fprintln(tw)
		}
		headers := make([]string, len(columns))
		for i, c := range columns {
			headers[i] = strings.ToUpper(strings.ReplaceAll(c, "_", " "))
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		for _, row := range t.Rows() {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	}
	return tw.Flush()
}

// NewFormatter returns the formatter for an output format name
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "json":
		return JSONFormatter{}, nil
	case "yaml":
		return YAMLFormatter{}, nil
	case "table", "":
		return TableFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// outputResults formats data and writes it to the output file or stdout
func (app *App) outputResults(data any) error {
	formatter, err := NewFormatter(app.ctx.OutputFormat)
	if err != nil {
		return err
	}

	formatted, err := formatter.Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}

	if app.ctx.OutputFile != "" {
		return app.writeToFile(app.ctx.OutputFile, formatted)
	}

	_, err = os.Stdout.Write(formatted)
	return err
}

// jsonSanitizer is implemented by reports that can replace NaN and Inf
// values, which JSON cannot represent
type jsonSanitizer interface {
	sanitized() any
}

func finite(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func finiteLoudness(r analyzers.LoudnessRecord) analyzers.LoudnessRecord {
	r.Decibels = finite(r.Decibels)
	r.PeakAmplitude = finite(r.PeakAmplitude)
	r.RMSAmplitude = finite(r.RMSAmplitude)
	return r
}

func (r *AnalysisReport) sanitized() any {
	out := *r
	out.DurationSeconds = finite(r.DurationSeconds)
	out.Summary = finiteLoudness(r.Summary)
	out.Buffers = make([]BufferMetrics, len(r.Buffers))
	for i, b := range r.Buffers {
		if b.Envelope != nil {
			e := EnvelopeMetrics{
				Min: float32(finite(float64(b.Envelope.Min))),
				Max: float32(finite(float64(b.Envelope.Max))),
			}
			b.Envelope = &e
		}
		if b.Loudness != nil {
			l := finiteLoudness(*b.Loudness)
			b.Loudness = &l
		}
		if b.Spectral != nil {
			sp := *b.Spectral
			sp.DominantFrequencyHz = finite(sp.DominantFrequencyHz)
			sp.SpectralCentroidHz = finite(sp.SpectralCentroidHz)
			sp.SpectralBandwidthHz = finite(sp.SpectralBandwidthHz)
			b.Spectral = &sp
		}
		out.Buffers[i] = b
	}
	return &out
}

func (r *RecordingReport) sanitized() any {
	out := *r
	out.DurationSeconds = finite(r.DurationSeconds)
	out.PeakLevel = finite(r.PeakLevel)
	out.Loudness = finiteLoudness(r.Loudness)
	return &out
}

func (r *DecodeReport) sanitized() any {
	out := *r
	out.DurationSeconds = finite(r.DurationSeconds)
	out.Loudness = finiteLoudness(r.Loudness)
	return &out
}
