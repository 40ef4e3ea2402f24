package logger

import (
	"io"
	"os"
	"strconv"
)

// Config controls level, format, and output routing. The zero value is
// usable: info level, JSON format, stdout only.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides all stdout/file routing when set
	ServiceName string    // tag attached to every line

	// Environment selects output routing. "local" (or empty) writes to
	// stdout only; anything else also writes LogFile with rotation.
	Environment string

	LogFile     string // rotated log file path
	LogFileOnly bool   // suppress stdout when the file writer is active

	MaxSizeMB  int  // rotate after this many megabytes
	MaxBackups int  // rotated files to keep
	MaxAgeDays int  // days to keep rotated files
	Compress   bool // gzip rotated files
}

// DefaultConfig returns the stdout-only defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "ytvault",
		Environment: "local",
	}
}

// LoadFromEnv reads the logger configuration from environment variables,
// falling back to the defaults where unset.
// Parameters: none.
// Returns:
//   - *Config: configuration assembled from LOG_* variables.
func LoadFromEnv() *Config {
	return &Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: getEnv("SERVICE_NAME", "ytvault"),
		Environment: getEnv("APP_ENV", "local"),

		LogFile:     getEnv("LOG_FILE", "/var/log/ytvault/app.log"),
		LogFileOnly: getEnvBool("LOG_FILE_ONLY", false),

		MaxSizeMB:  getEnvInt("LOG_MAX_SIZE", 100),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
		MaxAgeDays: getEnvInt("LOG_MAX_AGE", 30),
		Compress:   getEnvBool("LOG_COMPRESS", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
