package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"payment-reconciliation/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. RECON_STORE_PATH.
const EnvPrefix = "RECON"

// Config aggregates application configuration values.
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Collections CollectionsConfig `mapstructure:"collections"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Rematch     RematchConfig     `mapstructure:"rematch"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory|sqlite
	// Path is the SQLite database, or the JSON snapshot for the memory driver.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"` // text|json
	IncludeCaller bool   `mapstructure:"include_caller"`
}

// CollectionsConfig names the collections the engine works on.
type CollectionsConfig struct {
	Payments      string `mapstructure:"payments"`
	Registrations string `mapstructure:"registrations"`
	Quarantine    string `mapstructure:"quarantine"`
	Staging       string `mapstructure:"staging"`
	Backup        string `mapstructure:"backup"`
	Checkpoints   string `mapstructure:"checkpoints"`
}

// MatchingConfig tunes the confidence analyzer and amount comparisons.
// Tolerances are decimal strings so that no precision is lost in YAML.
type MatchingConfig struct {
	Weights                 domain.WeightTable `mapstructure:"weights"`
	AmountTolerance         string             `mapstructure:"amount_tolerance"`
	AmountRelativeTolerance string             `mapstructure:"amount_relative_tolerance"`
	FeeTolerance            string             `mapstructure:"fee_tolerance"`
	MinConfidence           int                `mapstructure:"min_confidence"`
}

// RematchConfig tunes batch rematching.
type RematchConfig struct {
	Workers         int `mapstructure:"workers"`
	CheckpointEvery int `mapstructure:"checkpoint_every"`
}

const (
	defaultStoreDriver   = "sqlite"
	defaultStorePath     = "data/reconciliation.db"
	defaultLoggingLevel  = "info"
	defaultLoggingFormat = "text"
	defaultTolerance     = "0.10"
	defaultWorkers       = 1
)

// Load reads configuration from defaults, then the optional YAML file at
// path, then RECON_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	settings := domain.DefaultSettings()
	cols := settings.Collections
	w := settings.Weights

	v.SetDefault("store.driver", defaultStoreDriver)
	v.SetDefault("store.path", defaultStorePath)

	v.SetDefault("logging.level", defaultLoggingLevel)
	v.SetDefault("logging.format", defaultLoggingFormat)
	v.SetDefault("logging.include_caller", false)

	v.SetDefault("collections.payments", cols.Payments)
	v.SetDefault("collections.registrations", cols.Registrations)
	v.SetDefault("collections.quarantine", cols.Quarantine)
	v.SetDefault("collections.staging", cols.Staging)
	v.SetDefault("collections.backup", cols.Backup)
	v.SetDefault("collections.checkpoints", cols.Checkpoints)

	v.SetDefault("matching.weights.payment_id", w.PaymentID)
	v.SetDefault("matching.weights.registration_id", w.RegistrationID)
	v.SetDefault("matching.weights.amount", w.Amount)
	v.SetDefault("matching.weights.fee", w.Fee)
	v.SetDefault("matching.weights.email", w.Email)
	v.SetDefault("matching.weights.name", w.Name)
	v.SetDefault("matching.amount_tolerance", defaultTolerance)
	v.SetDefault("matching.amount_relative_tolerance", "0")
	v.SetDefault("matching.fee_tolerance", defaultTolerance)
	v.SetDefault("matching.min_confidence", settings.MinConfidence)

	v.SetDefault("rematch.workers", defaultWorkers)
	v.SetDefault("rematch.checkpoint_every", settings.CheckpointEvery)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Matching.MinConfidence < 0 || c.Matching.MinConfidence > domain.MaxConfidence {
		return fmt.Errorf("min_confidence %d is out of range", c.Matching.MinConfidence)
	}
	if c.Rematch.Workers < 1 {
		return fmt.Errorf("rematch workers must be positive, got %d", c.Rematch.Workers)
	}
	_, err := c.Settings()
	return err
}

// Settings maps the configuration onto the engine settings.
func (c *Config) Settings() (domain.Settings, error) {
	amountAbs, err := parseTolerance("matching.amount_tolerance", c.Matching.AmountTolerance)
	if err != nil {
		return domain.Settings{}, err
	}
	amountRel, err := parseTolerance("matching.amount_relative_tolerance", c.Matching.AmountRelativeTolerance)
	if err != nil {
		return domain.Settings{}, err
	}
	feeAbs, err := parseTolerance("matching.fee_tolerance", c.Matching.FeeTolerance)
	if err != nil {
		return domain.Settings{}, err
	}

	return domain.Settings{
		Collections: domain.Collections{
			Payments:      c.Collections.Payments,
			Registrations: c.Collections.Registrations,
			Quarantine:    c.Collections.Quarantine,
			Staging:       c.Collections.Staging,
			Backup:        c.Collections.Backup,
			Checkpoints:   c.Collections.Checkpoints,
		},
		Weights:         c.Matching.Weights,
		AmountTolerance: domain.Tolerance{Absolute: amountAbs, Relative: amountRel},
		FeeTolerance:    domain.Tolerance{Absolute: feeAbs},
		MinConfidence:   c.Matching.MinConfidence,
		CheckpointEvery: c.Rematch.CheckpointEvery,
	}, nil
}

func parseTolerance(key, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
