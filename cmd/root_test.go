package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"analyze", "record", "decode", "config", "version"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}

	for _, flag := range []string{"config", "verbose", "log-level", "output"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.NotNil(t, analyzeCmd.Flags().Lookup("metrics"))
	assert.NotNil(t, recordCmd.Flags().Lookup("upload"))
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "micmetrics.yaml")

	rootCmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"config", "validate", path})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"config", "validate", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, rootCmd.Execute())
}
