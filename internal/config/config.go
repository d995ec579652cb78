// Package config loads sawmill configuration: typed defaults, overridden by
// an optional YAML file, overridden by SAWMILL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "15s" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all sawmill configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Source  SourceConfig  `yaml:"source"`
	Queue   QueueConfig   `yaml:"queue"`
	Mine    MineConfig    `yaml:"mine"`
	Window  WindowConfig  `yaml:"window"`
	Model   ModelConfig   `yaml:"model"`
	Monitor MonitorConfig `yaml:"monitor"`
	Report  ReportConfig  `yaml:"report"`
	Server  ServerConfig  `yaml:"server"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig holds log source provider settings.
type SourceConfig struct {
	Provider     string            `yaml:"provider"`
	Endpoint     string            `yaml:"endpoint"`
	APIKey       string            `yaml:"apiKey"`
	Query        string            `yaml:"query"`
	Limit        int               `yaml:"limit"`
	PollInterval Duration          `yaml:"pollInterval"`
	Extra        map[string]string `yaml:"extra"`
}

// QueueConfig holds the durable queue location.
type QueueConfig struct {
	Path string `yaml:"path"`
}

// MineConfig holds template miner settings.
type MineConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// WindowConfig holds the window length L (symbols per window, excluding the
// label).
type WindowConfig struct {
	Length int `yaml:"length"`
}

// ModelConfig holds sequence model settings.
type ModelConfig struct {
	Kind         string  `yaml:"kind"`
	Path         string  `yaml:"path"`
	TopK         int     `yaml:"topK"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learningRate"`
	BatchSize    int     `yaml:"batchSize"`
}

// MonitorConfig holds steady-state monitoring settings.
type MonitorConfig struct {
	PollInterval Duration `yaml:"pollInterval"`
}

// ReportConfig holds the report sink destination.
type ReportConfig struct {
	Output string `yaml:"output"` // "file", "stdout", or "webhook"
	Path   string `yaml:"path"`
	URL    string `yaml:"url"` // webhook endpoint
}

// ServerConfig holds the ops HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig holds OTLP tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Source: SourceConfig{
			Provider:     "loki",
			Query:        `{namespace="npps"}`,
			Limit:        1000,
			PollInterval: Duration(5 * time.Second),
		},
		Queue:  QueueConfig{Path: "data/sawmill.db"},
		Mine:   MineConfig{Threshold: 0.5},
		Window: WindowConfig{Length: 19},
		Model: ModelConfig{
			Kind:         "softmax",
			Path:         "data/model.bin",
			TopK:         2,
			Epochs:       100,
			LearningRate: 0.001,
			BatchSize:    32,
		},
		Monitor: MonitorConfig{PollInterval: Duration(15 * time.Second)},
		Report:  ReportConfig{Output: "file", Path: "data/anomaly_results.txt"},
		Server:  ServerConfig{Addr: ":8000"},
		Tracing: TracingConfig{
			ServiceName:  "sawmill",
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1.0,
		},
	}
}

// Load builds the effective configuration. A missing file is not an error;
// a present but unreadable or invalid one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults + env only
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides individual settings from SAWMILL_* variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "SAWMILL_LOG_LEVEL")
	setString(&cfg.Source.Provider, "SAWMILL_SOURCE")
	setString(&cfg.Source.Endpoint, "SAWMILL_SOURCE_ENDPOINT")
	setString(&cfg.Source.APIKey, "SAWMILL_SOURCE_API_KEY")
	setString(&cfg.Source.Query, "SAWMILL_SOURCE_QUERY")
	setInt(&cfg.Source.Limit, "SAWMILL_SOURCE_LIMIT")
	setDuration(&cfg.Source.PollInterval, "SAWMILL_SOURCE_POLL_INTERVAL")
	setString(&cfg.Queue.Path, "SAWMILL_QUEUE_PATH")
	setFloat(&cfg.Mine.Threshold, "SAWMILL_MINE_THRESHOLD")
	setInt(&cfg.Window.Length, "SAWMILL_WINDOW_LENGTH")
	setString(&cfg.Model.Kind, "SAWMILL_MODEL_KIND")
	setString(&cfg.Model.Path, "SAWMILL_MODEL_PATH")
	setInt(&cfg.Model.TopK, "SAWMILL_MODEL_TOP_K")
	setInt(&cfg.Model.Epochs, "SAWMILL_MODEL_EPOCHS")
	setFloat(&cfg.Model.LearningRate, "SAWMILL_MODEL_LEARNING_RATE")
	setInt(&cfg.Model.BatchSize, "SAWMILL_MODEL_BATCH_SIZE")
	setDuration(&cfg.Monitor.PollInterval, "SAWMILL_MONITOR_POLL_INTERVAL")
	setString(&cfg.Report.Output, "SAWMILL_REPORT_OUTPUT")
	setString(&cfg.Report.Path, "SAWMILL_REPORT_PATH")
	setString(&cfg.Report.URL, "SAWMILL_REPORT_URL")
	setString(&cfg.Server.Addr, "SAWMILL_SERVER_ADDR")

	if v := os.Getenv("SAWMILL_SOURCE_PATH"); v != "" {
		if cfg.Source.Extra == nil {
			cfg.Source.Extra = make(map[string]string)
		}
		cfg.Source.Extra["path"] = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
