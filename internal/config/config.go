package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DetectionConfig holds the tunable weights and thresholds of the
// duplicate detection pipeline. The defaults are a documented starting
// point, not claimed optimal; retune against your own corpus.
type DetectionConfig struct {
	SemanticThreshold float64 `yaml:"semantic_threshold" mapstructure:"semantic_threshold"`
	SemanticLimit     int     `yaml:"semantic_limit" mapstructure:"semantic_limit"`
	CombinedFloor     float64 `yaml:"combined_floor" mapstructure:"combined_floor"`
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results"`
	FanOut            int     `yaml:"fan_out" mapstructure:"fan_out"`

	// Combine-formula weights over the three similarity signals.
	TitleWeight    float64 `yaml:"title_weight" mapstructure:"title_weight"`
	ContentWeight  float64 `yaml:"content_weight" mapstructure:"content_weight"`
	MetadataWeight float64 `yaml:"metadata_weight" mapstructure:"metadata_weight"`

	// Tier thresholds (exact is hash- or score-driven, not configured).
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`

	// Per-field metadata overlap weights, summing to 1.0.
	MetadataWeights map[string]float64 `yaml:"metadata_weights" mapstructure:"metadata_weights"`
}

// ServerConfig configures the review-facing HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ResolveRPS     float64  `yaml:"resolve_rps" mapstructure:"resolve_rps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultMetadataWeights is the documented starting weight table for
// metadata overlap scoring. Keys match model.MetadataFields.
func defaultMetadataWeights() map[string]float64 {
	return map[string]float64{
		"grade_levels":      0.20,
		"themes":            0.20,
		"activity_type":     0.15,
		"cultural_heritage": 0.15,
		"season":            0.10,
		"main_ingredients":  0.10,
		"cooking_methods":   0.10,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CURRICULUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.resolve_rps", 2)
	v.SetDefault("detection.semantic_threshold", 0.5)
	v.SetDefault("detection.semantic_limit", 10)
	v.SetDefault("detection.combined_floor", 0.45)
	v.SetDefault("detection.max_results", 10)
	v.SetDefault("detection.fan_out", 8)
	v.SetDefault("detection.title_weight", 0.3)
	v.SetDefault("detection.content_weight", 0.5)
	v.SetDefault("detection.metadata_weight", 0.2)
	v.SetDefault("detection.high_threshold", 0.85)
	v.SetDefault("detection.medium_threshold", 0.70)
	v.SetDefault("detection.metadata_weights", defaultMetadataWeights())

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateDetection checks that a DetectionConfig is internally consistent.
func ValidateDetection(c DetectionConfig) error {
	var errs []string

	weights := map[string]float64{
		"title_weight":    c.TitleWeight,
		"content_weight":  c.ContentWeight,
		"metadata_weight": c.MetadataWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := c.TitleWeight + c.ContentWeight + c.MetadataWeight
	if math.Abs(sum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("combine weights should sum to 1.0, got %.3f", sum))
	}

	var metaSum float64
	for field, w := range c.MetadataWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("metadata weight %s must be >= 0", field))
		}
		metaSum += w
	}
	if math.Abs(metaSum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("metadata weights should sum to 1.0, got %.3f", metaSum))
	}

	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		errs = append(errs, "semantic_threshold must be between 0 and 1")
	}
	if c.CombinedFloor <= 0 || c.CombinedFloor > 1 {
		errs = append(errs, "combined_floor must be in (0, 1]")
	}
	if !(c.HighThreshold > c.MediumThreshold && c.MediumThreshold > c.CombinedFloor) {
		errs = append(errs, "tier thresholds must satisfy high > medium > floor")
	}
	if c.SemanticLimit <= 0 {
		errs = append(errs, "semantic_limit must be > 0")
	}
	if c.MaxResults <= 0 {
		errs = append(errs, "max_results must be > 0")
	}
	if c.FanOut <= 0 {
		errs = append(errs, "fan_out must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: detection validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
