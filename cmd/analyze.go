package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmetrics/internal/app"
)

var (
	analyzeBufferSize int
	analyzeMetrics    []string
	analyzeOutputFile string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Run per-buffer audio analysis over a WAV file",
	Long: `Stream a WAV file through the envelope, loudness and spectral analyzers
one buffer at a time and report a record per buffer plus a loudness summary
for the whole recording.

Examples:
  micmetrics analyze take.wav
  micmetrics analyze take.wav --metrics loudness,spectral --buffer-size 1024
  micmetrics analyze take.wav -o json --output-file report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVarP(&analyzeBufferSize, "buffer-size", "b", 0,
		"samples per buffer, must be a power of two (default from config)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeMetrics, "metrics", "m", nil,
		"metrics to compute: envelope, loudness, spectral (default all)")
	analyzeCmd.Flags().StringVarP(&analyzeOutputFile, "output-file", "f", "",
		"write the report to a file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.NewApp(&app.Context{
		InputFile:  args[0],
		OutputFile: analyzeOutputFile,
		BufferSize: analyzeBufferSize,
		Metrics:    analyzeMetrics,
		Verbose:    verbose,
	})
	if err != nil {
		return err
	}

	return application.Analyze(ctx)
}
