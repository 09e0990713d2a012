package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// NotificationServiceConfig represents the notification service configuration
	NotificationServiceConfig struct {
		Host      string          `yaml:"host"`
		Port      int             `yaml:"port"`
		Logger    LoggerConfig    `yaml:"logger"`
		Hub       HubConfig       `yaml:"hub"`
		Limits    LimitsConfig    `yaml:"limits"`
		WebSocket WebSocketConfig `yaml:"websocket"`
		Kafka     KafkaConfig     `yaml:"kafka"`
		Bus       BusConfig       `yaml:"bus"`
		Storage   StorageConfig   `yaml:"storage"`
		Decoder   DecoderConfig   `yaml:"decoder"`
		Metrics   MetricsConfig   `yaml:"metrics"`
		Trace     TraceConfig     `yaml:"trace"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // e.g. "UTC", default is local
		TimeFormat string `yaml:"time_format"` // default is "2006-01-02 15:04:05"
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Path      string    `yaml:"path"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TraceConfig represents OpenTelemetry tracing configuration
	TraceConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`  // dev/staging/prod
		Headers     map[string]string `yaml:"headers"`
	}
)

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// LoadConfig loads configuration from a YAML file with environment variable support.
// It returns the parsed config together with the resolved file path.
func LoadConfig(filename string) (*NotificationServiceConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath, err := resolvePath(filename)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	data = resolveEnv(data)
	var cfg NotificationServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, err
	}
	return &cfg, cfgPath, nil
}

// resolvePath looks the file up as given, then under ./configs, then /etc/notification-service.
func resolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("config filename cannot be empty")
	}
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	candidates := []string{filename, filepath.Join("configs", filename)}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return filepath.Abs(c)
		}
	}
	return filepath.Join("/etc/notification-service", filepath.Base(filename)), nil
}

// resolveEnv replaces ${NAME} and ${NAME:default} placeholders in YAML content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := envPattern.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string
		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}
		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
