package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/forest"
	"github.com/couchcryptid/air-quality-model/internal/modelstore"
	"github.com/couchcryptid/air-quality-model/internal/training"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Feature store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Model store backends.
const (
	ModelStoreDir = "dir"
	ModelStoreS3  = "s3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeatureStoreDriver string
	FeatureStoreDSN    string

	ModelStore     string
	ModelDir       string
	S3             modelstore.S3Config
	ModelCacheSize int

	// Training settings. A TRAINING_CONFIG file overrides the environment.
	Targets            []string
	TrainingMode       training.Mode
	TrainingDays       int
	TrainingBBox       *domain.BoundingBox
	ValidationFraction float64
	MinRows            int
	FeatureAllowList   []string
	Forest             forest.Params

	DefaultPolicy features.DefaultPolicy

	// Prediction sinks.
	PredictionLogEnabled  bool
	RedisURL              string
	RedisChannel          string
	KafkaBrokers          []string
	KafkaPredictionsTopic string
	SinkBreakerFailures   uint32
	SinkBreakerTimeout    time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RetrainInterval time.Duration
}

// trainingFile is the optional YAML document named by TRAINING_CONFIG.
type trainingFile struct {
	Targets            []string       `yaml:"targets"`
	Mode               string         `yaml:"mode"`
	Days               int            `yaml:"days"`
	ValidationFraction float64        `yaml:"validation_fraction"`
	MinRows            int            `yaml:"min_rows"`
	Features           []string       `yaml:"features"`
	Forest             *forest.Params `yaml:"forest"`
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	retrainInterval, err := parseDuration("RETRAIN_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := parseDuration("SINK_BREAKER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeatureStoreDriver: sharedcfg.EnvOrDefault("FEATURE_STORE_DRIVER", DriverSQLite),
		FeatureStoreDSN:    sharedcfg.EnvOrDefault("FEATURE_STORE_DSN", "airquality.db"),

		ModelStore: sharedcfg.EnvOrDefault("MODEL_STORE", ModelStoreDir),
		ModelDir:   sharedcfg.EnvOrDefault("MODEL_DIR", "models"),
		S3: modelstore.S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          sharedcfg.EnvOrDefault("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          os.Getenv("S3_PREFIX"),
			UsePathStyle:    os.Getenv("S3_USE_PATH_STYLE") == "true",
		},

		Targets:          SplitList(sharedcfg.EnvOrDefault("TARGETS", domain.ColPM25)),
		FeatureAllowList: SplitList(os.Getenv("FEATURES")),

		PredictionLogEnabled:  os.Getenv("PREDICTION_LOG_ENABLED") != "false",
		RedisURL:              os.Getenv("REDIS_URL"),
		RedisChannel:          sharedcfg.EnvOrDefault("REDIS_CHANNEL", "airquality:predictions"),
		KafkaBrokers:          sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaPredictionsTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTIONS_TOPIC", "air-quality-predictions"),
		SinkBreakerTimeout:    breakerTimeout,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RetrainInterval: retrainInterval,
	}

	if err := cfg.parseNumbers(); err != nil {
		return nil, err
	}
	if err := cfg.parseEnums(); err != nil {
		return nil, err
	}
	if cfg.TrainingBBox, err = ParseBBox(os.Getenv("TRAINING_BBOX")); err != nil {
		return nil, fmt.Errorf("invalid TRAINING_BBOX: %w", err)
	}
	if path := os.Getenv("TRAINING_CONFIG"); path != "" {
		if err := cfg.applyTrainingFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseNumbers() error {
	var err error
	if c.ModelCacheSize, err = parsePositiveInt("MODEL_CACHE_SIZE", 16); err != nil {
		return err
	}
	if c.TrainingDays, err = parsePositiveInt("TRAINING_DAYS", 180); err != nil {
		return err
	}
	if c.MinRows, err = parsePositiveInt("MIN_ROWS", features.DefaultMinRows); err != nil {
		return err
	}
	if c.S3.MaxRetries, err = parsePositiveInt("S3_MAX_RETRIES", 3); err != nil {
		return err
	}
	failures, err := parsePositiveInt("SINK_BREAKER_FAILURES", 5)
	if err != nil {
		return err
	}
	c.SinkBreakerFailures = uint32(failures) //nolint:gosec // bounded by strconv.Atoi on small values

	c.ValidationFraction = training.DefaultValidationFraction
	if s := os.Getenv("VALIDATION_FRACTION"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 || f >= 1 {
			return errors.New("invalid VALIDATION_FRACTION: must be between 0 and 1")
		}
		c.ValidationFraction = f
	}

	c.Forest = forest.DefaultParams()
	if c.Forest.NumTrees, err = parsePositiveInt("FOREST_TREES", c.Forest.NumTrees); err != nil {
		return err
	}
	if c.Forest.MaxDepth, err = parsePositiveInt("FOREST_MAX_DEPTH", c.Forest.MaxDepth); err != nil {
		return err
	}
	if c.Forest.MinSamplesLeaf, err = parsePositiveInt("FOREST_MIN_SAMPLES_LEAF", c.Forest.MinSamplesLeaf); err != nil {
		return err
	}
	if s := os.Getenv("FOREST_MAX_FEATURES"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return errors.New("invalid FOREST_MAX_FEATURES: must be a non-negative integer")
		}
		c.Forest.MaxFeatures = n
	}
	if s := os.Getenv("SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return errors.New("invalid SEED: must be a non-negative integer")
		}
		c.Forest.Seed = seed
	}
	return nil
}

func (c *Config) parseEnums() error {
	mode, err := training.ParseMode(sharedcfg.EnvOrDefault("TRAINING_MODE", string(training.ModeSingle)))
	if err != nil {
		return fmt.Errorf("invalid TRAINING_MODE: %w", err)
	}
	c.TrainingMode = mode

	policy, err := features.ParseDefaultPolicy(sharedcfg.EnvOrDefault("PREDICT_DEFAULT_POLICY", string(features.DefaultMedian)))
	if err != nil {
		return fmt.Errorf("invalid PREDICT_DEFAULT_POLICY: %w", err)
	}
	c.DefaultPolicy = policy
	return nil
}

// applyTrainingFile overlays the non-zero fields of a YAML training file.
func (c *Config) applyTrainingFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("read TRAINING_CONFIG: %w", err)
	}
	var f trainingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse TRAINING_CONFIG %s: %w", path, err)
	}

	if len(f.Targets) > 0 {
		c.Targets = f.Targets
	}
	if f.Mode != "" {
		mode, err := training.ParseMode(f.Mode)
		if err != nil {
			return fmt.Errorf("TRAINING_CONFIG mode: %w", err)
		}
		c.TrainingMode = mode
	}
	if f.Days > 0 {
		c.TrainingDays = f.Days
	}
	if f.ValidationFraction != 0 {
		if f.ValidationFraction <= 0 || f.ValidationFraction >= 1 {
			return errors.New("TRAINING_CONFIG validation_fraction must be between 0 and 1")
		}
		c.ValidationFraction = f.ValidationFraction
	}
	if f.MinRows > 0 {
		c.MinRows = f.MinRows
	}
	if len(f.Features) > 0 {
		c.FeatureAllowList = f.Features
	}
	if p := f.Forest; p != nil {
		if p.NumTrees > 0 {
			c.Forest.NumTrees = p.NumTrees
		}
		if p.MaxDepth > 0 {
			c.Forest.MaxDepth = p.MaxDepth
		}
		if p.MinSamplesLeaf > 0 {
			c.Forest.MinSamplesLeaf = p.MinSamplesLeaf
		}
		if p.MaxFeatures > 0 {
			c.Forest.MaxFeatures = p.MaxFeatures
		}
		if p.Seed != 0 {
			c.Forest.Seed = p.Seed
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.FeatureStoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid FEATURE_STORE_DRIVER %q: want sqlite or postgres", c.FeatureStoreDriver)
	}
	switch c.ModelStore {
	case ModelStoreDir:
		if c.ModelDir == "" {
			return errors.New("MODEL_DIR is required")
		}
	case ModelStoreS3:
		if c.S3.Bucket == "" {
			return errors.New("MODEL_STORE is s3 but S3_BUCKET is not set")
		}
	default:
		return fmt.Errorf("invalid MODEL_STORE %q: want dir or s3", c.ModelStore)
	}
	if len(c.Targets) == 0 {
		return errors.New("TARGETS is required")
	}
	for _, t := range c.Targets {
		if err := modelstore.ValidTarget(t); err != nil {
			return fmt.Errorf("invalid TARGETS: %w", err)
		}
	}
	return nil
}

// SplitList splits a comma-separated list of names, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ParseBBox parses "latMin,latMax,lonMin,lonMax". An empty string means no box.
func ParseBBox(s string) (*domain.BoundingBox, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil //nolint:nilnil // no box configured
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("want 4 comma-separated numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p)
		}
		v[i] = f
	}
	box := &domain.BoundingBox{LatMin: v[0], LatMax: v[1], LonMin: v[2], LonMax: v[3]}
	if box.LatMin > box.LatMax || box.LonMin > box.LonMax {
		return nil, errors.New("min must not exceed max")
	}
	return box, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
