package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmetrics/internal/app"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a canonical 44-byte header WAV file",
	Long: `Read a WAV file the way the recorder reads its own output: skip the
first 44 bytes and interpret the rest as little-endian 16-bit samples.
Prints sample count, duration and overall loudness.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(&app.Context{
		InputFile: args[0],
		Verbose:   verbose,
	})
	if err != nil {
		return err
	}

	return application.Decode()
}
