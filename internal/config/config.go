// Package config loads application settings from defaults, a YAML file and
// NOFACETOUCH_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOFACETOUCH_"

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Camera     CameraConfig     `yaml:"camera"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Training   TrainingConfig   `yaml:"training"`
	Detection  DetectionConfig  `yaml:"detection"`
	Alert      AlertConfig      `yaml:"alert"`
	History    HistoryConfig    `yaml:"history"`
	Server     ServerConfig     `yaml:"server"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

type EmbeddingConfig struct {
	Backend        string        `yaml:"backend"`      // auto, dnn, service or thumbnail
	ModelPath      string        `yaml:"model_path"`   // network weights for the dnn backend
	ConfigPath     string        `yaml:"config_path"`  // optional network description
	OutputLayer    string        `yaml:"output_layer"` // defaults to the final output
	InputSize      int           `yaml:"input_size"`
	ServiceCommand []string      `yaml:"service_command"`
	ServiceIdle    time.Duration `yaml:"service_idle"`
	ThumbWidth     int           `yaml:"thumb_width"`
	ThumbHeight    int           `yaml:"thumb_height"`
}

type ClassifierConfig struct {
	K     int    `yaml:"k"`
	Index string `yaml:"index"` // exact or hnsw
}

type TrainingConfig struct {
	Ticks          int           `yaml:"ticks"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	CountdownSteps int           `yaml:"countdown_steps"`
	CountdownStep  time.Duration `yaml:"countdown_step"`
	TickRetries    int           `yaml:"tick_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type DetectionConfig struct {
	Threshold   float64       `yaml:"threshold"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type AlertConfig struct {
	Command []string      `yaml:"command"`
	Sound   string        `yaml:"sound"`
	Timeout time.Duration `yaml:"timeout"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // ":memory:" keeps the history for the session only
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Index names accepted by ClassifierConfig.Index.
const (
	IndexExact = "exact"
	IndexHNSW  = "hnsw"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Embedding: EmbeddingConfig{
			Backend:        "auto",
			InputSize:      224,
			ServiceCommand: []string{"python3", "scripts/embedding_service.py"},
			ServiceIdle:    30 * time.Second,
			ThumbWidth:     32,
			ThumbHeight:    24,
		},
		Classifier: ClassifierConfig{
			K:     3,
			Index: IndexExact,
		},
		Training: TrainingConfig{
			Ticks:          50,
			TickInterval:   100 * time.Millisecond,
			CountdownSteps: 3,
			CountdownStep:  time.Second,
			TickRetries:    2,
			RetryDelay:     50 * time.Millisecond,
		},
		Detection: DetectionConfig{
			Threshold: 0.9,
		},
		Alert: AlertConfig{
			Sound:   "assets/sound/no.mp3",
			Timeout: 5 * time.Second,
		},
		History: HistoryConfig{
			Path: ":memory:",
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any, and
// then with environment overrides. A missing file is an error only when path
// was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NOFACETOUCH_* environment variables.
func (c *Config) ApplyEnv() {
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)

	c.Camera.Device = envInt("CAMERA", c.Camera.Device)
	c.Camera.FPS = envInt("CAMERA_FPS", c.Camera.FPS)

	c.Embedding.Backend = envString("EMBEDDING_BACKEND", c.Embedding.Backend)
	c.Embedding.ModelPath = envString("MODEL", c.Embedding.ModelPath)
	c.Embedding.ServiceCommand = envFields("EMBEDDING_SERVICE", c.Embedding.ServiceCommand)

	c.Classifier.K = envInt("K", c.Classifier.K)
	c.Classifier.Index = envString("INDEX", c.Classifier.Index)

	c.Training.Ticks = envInt("TRAINING_TICKS", c.Training.Ticks)
	c.Training.TickInterval = envDuration("TICK_INTERVAL", c.Training.TickInterval)

	c.Detection.Threshold = envFloat("THRESHOLD", c.Detection.Threshold)

	c.Alert.Command = envFields("ALERT_COMMAND", c.Alert.Command)
	c.Alert.Sound = envString("ALERT_SOUND", c.Alert.Sound)

	c.History.Path = envString("HISTORY_PATH", c.History.Path)
	c.Server.Addr = envString("ADDR", c.Server.Addr)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Training.Ticks <= 0 {
		errs = append(errs, fmt.Errorf("training.ticks must be positive, got %d", c.Training.Ticks))
	}
	if c.Training.TickRetries < 0 {
		errs = append(errs, fmt.Errorf("training.tick_retries must not be negative, got %d", c.Training.TickRetries))
	}
	if c.Detection.Threshold <= 0 || c.Detection.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("detection.threshold must be in (0, 1), got %g", c.Detection.Threshold))
	}
	if c.Classifier.K <= 0 {
		errs = append(errs, fmt.Errorf("classifier.k must be positive, got %d", c.Classifier.K))
	}
	switch c.Classifier.Index {
	case IndexExact, IndexHNSW:
	default:
		errs = append(errs, fmt.Errorf("classifier.index must be %q or %q, got %q", IndexExact, IndexHNSW, c.Classifier.Index))
	}

	return errors.Join(errs...)
}

// Level returns the configured log level, or info if it does not parse.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(EnvPrefix + key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(EnvPrefix + key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(EnvPrefix + key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// envFields splits a command line on whitespace.
func envFields(key string, defaultVal []string) []string {
	s := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if s == "" {
		return defaultVal
	}
	return strings.Fields(s)
}
