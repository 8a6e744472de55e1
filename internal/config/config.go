package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
)

// Store backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	ScoringAddr     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ServiceVersion  string

	// Scheduling.
	RetrainInterval time.Duration
	PollInterval    time.Duration

	// Feature building and training.
	MinTrainingRows int
	Model           model.Config

	// Stores.
	StoreBackend  string
	DataStore     string
	DataPrefix    string
	ArtifactStore string
	ArtifactPath  string

	// Publication events.
	KafkaBrokers    []string
	KafkaModelTopic string
	KafkaEnabled    bool
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	retrainInterval, err := parsePositiveDuration("RETRAIN_INTERVAL", "360h")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	minRows, err := parsePositiveInt("MIN_TRAINING_ROWS", 100)
	if err != nil {
		return nil, err
	}

	modelCfg, err := loadModelConfig()
	if err != nil {
		return nil, err
	}

	brokers := sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ScoringAddr:     sharedcfg.EnvOrDefault("SCORING_ADDR", ":5000"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		ServiceVersion:  sharedcfg.EnvOrDefault("SERVICE_VERSION", "1.0.1"),

		RetrainInterval: retrainInterval,
		PollInterval:    pollInterval,

		MinTrainingRows: minRows,
		Model:           modelCfg,

		StoreBackend:  sharedcfg.EnvOrDefault("STORE_BACKEND", BackendFS),
		DataStore:     sharedcfg.EnvOrDefault("DATA_STORE", "./data/raw"),
		DataPrefix:    os.Getenv("DATA_PREFIX"),
		ArtifactStore: sharedcfg.EnvOrDefault("ARTIFACT_STORE", "./data/artifacts"),
		ArtifactPath:  sharedcfg.EnvOrDefault("ARTIFACT_PATH", "models/environmental_model.json"),

		KafkaBrokers:    brokers,
		KafkaModelTopic: sharedcfg.EnvOrDefault("KAFKA_MODEL_TOPIC", "model-published"),
		KafkaEnabled:    kafkaEnabled,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendFS, BackendSQLite:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (allowed: fs, sqlite)", c.StoreBackend)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (allowed: json, text)", c.LogFormat)
	}
	if c.PollInterval > c.RetrainInterval {
		return errors.New("POLL_INTERVAL must not exceed RETRAIN_INTERVAL")
	}
	if c.ArtifactPath == "" || strings.HasSuffix(c.ArtifactPath, "/") {
		return errors.New("ARTIFACT_PATH must name an object")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if c.KafkaEnabled && c.KafkaModelTopic == "" {
		return errors.New("KAFKA_MODEL_TOPIC is required")
	}
	return nil
}

func loadModelConfig() (model.Config, error) {
	cfg := model.DefaultConfig()

	if s := os.Getenv("TEST_FRACTION"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return cfg, errors.New("invalid TEST_FRACTION")
		}
		cfg.TestFraction = f
	}
	if s := os.Getenv("RANDOM_SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return cfg, errors.New("invalid RANDOM_SEED")
		}
		cfg.Seed = seed
	}

	var err error
	if cfg.Trees, err = parsePositiveInt("FOREST_TREES", cfg.Trees); err != nil {
		return cfg, err
	}
	if cfg.MaxDepth, err = parsePositiveInt("FOREST_MAX_DEPTH", cfg.MaxDepth); err != nil {
		return cfg, err
	}
	if cfg.MinSamplesLeaf, err = parsePositiveInt("FOREST_MIN_SAMPLES_LEAF", cfg.MinSamplesLeaf); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid model settings: %w", err)
	}
	return cfg, nil
}

// parsePositiveDuration reads a schedule interval; zero or negative values
// are rejected.
func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
