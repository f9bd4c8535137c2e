package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/micmetrics/configs"
)

// LoadConfigFile loads a YAML or JSON configuration file on top of the defaults
func LoadConfigFile(filePath string) (*configs.Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", filePath)
	}

	v := viper.New()
	v.SetConfigFile(filePath)
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml", ".json":
	default:
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return configs.LoadConfigFrom(v)
}

// GenerateExampleConfig writes the default configuration as YAML
func GenerateExampleConfig(outputFile string) error {
	data, err := yaml.Marshal(configs.GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("✅ Example configuration written to: %s\n", outputFile)
	return nil
}

// ValidateConfig validates a configuration file
func ValidateConfig(configFile string) error {
	config, err := LoadConfigFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Printf("✅ Configuration is valid: %s\n", configFile)
	fmt.Printf("   - Audio: %d Hz, %d channel(s), %d-bit, %d-sample buffers\n",
		config.Audio.SampleRate, config.Audio.Channels, config.Audio.BitsPerSample, config.Audio.BufferSize)
	fmt.Printf("   - Spectral bandwidth mode: %s\n", config.Spectral.BandwidthMode)
	fmt.Printf("   - Upload: %t\n", config.Recording.Upload)

	return nil
}
