package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	OutputDirectory  string           `mapstructure:"output_directory"`
	Overwrite        bool             `mapstructure:"overwrite"`
	DefaultSubfolder string           `mapstructure:"default_subfolder"`
	Stripper         StripperConfig   `mapstructure:"stripper"`
	Processing       ProcessingConfig `mapstructure:"processing"`
	Server           ServerConfig     `mapstructure:"server"`
	Logging          LoggingConfig    `mapstructure:"logging"`
}

// StripperConfig selects and tunes the metadata removal backend
type StripperConfig struct {
	Backend      string `mapstructure:"backend"`
	ExiftoolPath string `mapstructure:"exiftool_path"`
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
}

// ProcessingConfig contains batch processing settings
type ProcessingConfig struct {
	Workers             int      `mapstructure:"workers"`
	SupportedExtensions []string `mapstructure:"supported_extensions"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultSubfolder: "cleaned",
		Stripper: StripperConfig{
			Backend:     "exiftool",
			JPEGQuality: 95,
		},
		Processing: ProcessingConfig{
			Workers: 1, // sequential unless asked otherwise
			SupportedExtensions: []string{
				".jpg", ".jpeg", ".png", ".tiff", ".tif", ".gif", ".webp", ".heic",
				".cr2", ".nef", ".arw", ".dng", ".pdf", ".mp4", ".mov", ".mp3",
			},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "metadata-cleaner.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	return loadWith(viper.New(), configPath)
}

func loadWith(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.metadata-cleaner")
		v.AddConfigPath("/etc/metadata-cleaner")
	}

	v.SetEnvPrefix("METADATA_CLEANER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every key so AutomaticEnv values reach Unmarshal
// even when no config file mentions them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"output_directory", "overwrite", "default_subfolder",
		"stripper.backend", "stripper.exiftool_path", "stripper.jpeg_quality",
		"processing.workers", "processing.supported_extensions", "server.port",
		"logging.level", "logging.file_path", "logging.max_size",
		"logging.max_backups", "logging.max_age", "logging.compress",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OutputDirectory != "" {
		c.OutputDirectory = expandPath(c.OutputDirectory)
	}

	if c.DefaultSubfolder == "" {
		c.DefaultSubfolder = "cleaned"
	}
	if strings.ContainsAny(c.DefaultSubfolder, `/\`) {
		return fmt.Errorf("default_subfolder must be a single folder name: %s", c.DefaultSubfolder)
	}

	validBackends := map[string]bool{
		"exiftool": true,
		"reencode": true,
	}
	c.Stripper.Backend = strings.ToLower(c.Stripper.Backend)
	if !validBackends[c.Stripper.Backend] {
		return fmt.Errorf("invalid stripper backend: %s (valid: exiftool, reencode)", c.Stripper.Backend)
	}

	if c.Stripper.JPEGQuality == 0 {
		c.Stripper.JPEGQuality = 95
	}
	if c.Stripper.JPEGQuality < 1 || c.Stripper.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg_quality: %d (valid: 1-100)", c.Stripper.JPEGQuality)
	}

	if c.Processing.Workers < 0 {
		return fmt.Errorf("invalid processing.workers: %d", c.Processing.Workers)
	}
	if c.Processing.Workers == 0 {
		c.Processing.Workers = 1
	}
	c.Processing.SupportedExtensions = normalizeExtensions(c.Processing.SupportedExtensions)

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// IsSupportedExtension checks if ext is one the CLI picks up when expanding directories
func (c *Config) IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Processing.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
