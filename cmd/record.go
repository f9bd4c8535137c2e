package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmetrics/internal/app"
)

var (
	recordInput      string
	recordToneHz     float64
	recordDuration   time.Duration
	recordPath       string
	recordBufferSize int
	recordUpload     bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a WAV file from an input file or a generated tone",
	Long: `Run a recording session: buffers from the source are written to a
canonical 16-bit PCM WAV file while a level meter and loudness summary run
alongside. The finished file can be uploaded to S3-compatible storage.

Examples:
  micmetrics record --tone 440 --duration 2s --path take.wav
  micmetrics record --input source.wav
  micmetrics record --tone 1000 --duration 5s --upload`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordInput, "input", "i", "",
		"WAV file to use as the source")
	recordCmd.Flags().Float64Var(&recordToneHz, "tone", 0,
		"record a sine tone at this frequency in Hz")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0,
		"length of the generated tone")
	recordCmd.Flags().StringVarP(&recordPath, "path", "p", "",
		"recording file (default is a timestamped file in recording.output_dir)")
	recordCmd.Flags().IntVarP(&recordBufferSize, "buffer-size", "b", 0,
		"samples per buffer, must be a power of two (default from config)")
	recordCmd.Flags().BoolVar(&recordUpload, "upload", false,
		"upload the recording to the configured S3 bucket")

	recordCmd.MarkFlagsMutuallyExclusive("input", "tone")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.NewApp(&app.Context{
		InputFile:     recordInput,
		BufferSize:    recordBufferSize,
		RecordingPath: recordPath,
		ToneHz:        recordToneHz,
		ToneDuration:  recordDuration,
		Upload:        recordUpload,
		Verbose:       verbose,
	})
	if err != nil {
		return err
	}

	return application.Record(ctx)
}
