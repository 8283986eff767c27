package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hennedk/leasingborsen-sub012/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
	// LedgerDriver selects where cost records live: "postgres" (shared with
	// inventory) or "sqlite" (local development).
	LedgerDriver string `yaml:"ledger_driver" mapstructure:"ledger_driver"`
	LedgerPath   string `yaml:"ledger_path" mapstructure:"ledger_path"`
}

// BudgetConfig holds the externally configured cost ceilings, in minor
// currency units. Read once per ledger/orchestrator instantiation.
type BudgetConfig struct {
	PerDocumentCents  int64 `yaml:"per_document_cents" mapstructure:"per_document_cents"`
	DailyLimitCents   int64 `yaml:"daily_limit_cents" mapstructure:"daily_limit_cents"`
	MonthlyLimitCents int64 `yaml:"monthly_limit_cents" mapstructure:"monthly_limit_cents"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
	// CostPerKTokensCents is the blended rate used for pre-flight estimates.
	CostPerKTokensCents int64 `yaml:"cost_per_ktokens_cents" mapstructure:"cost_per_ktokens_cents"`
}

// MistralConfig holds Mistral API settings (fallback provider).
type MistralConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	BaseURL             string `yaml:"base_url" mapstructure:"base_url"`
	Model               string `yaml:"model" mapstructure:"model"`
	CostPerKTokensCents int64  `yaml:"cost_per_ktokens_cents" mapstructure:"cost_per_ktokens_cents"`
}

// ExtractionConfig configures the orchestrator.
type ExtractionConfig struct {
	Strategy            string  `yaml:"strategy" mapstructure:"strategy"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseTimeoutSecs     int     `yaml:"base_timeout_secs" mapstructure:"base_timeout_secs"`
	TimeoutSecsPer10KB  int     `yaml:"timeout_secs_per_10kb" mapstructure:"timeout_secs_per_10kb"`
	ProviderRatePerMin  int     `yaml:"provider_rate_per_min" mapstructure:"provider_rate_per_min"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	Locale              string  `yaml:"locale" mapstructure:"locale"`
}

// ValidationConfig holds the currency-specific plausibility bounds. Defaults
// target the Danish private-leasing market (amounts in øre).
type ValidationConfig struct {
	MonthlyMinCents      int64   `yaml:"monthly_min_cents" mapstructure:"monthly_min_cents"`
	MonthlyMaxCents      int64   `yaml:"monthly_max_cents" mapstructure:"monthly_max_cents"`
	AnnualKmMin          int     `yaml:"annual_km_min" mapstructure:"annual_km_min"`
	AnnualKmMax          int     `yaml:"annual_km_max" mapstructure:"annual_km_max"`
	CO2TaxCeilingCents   int64   `yaml:"co2_tax_ceiling_cents" mapstructure:"co2_tax_ceiling_cents"`
	ConsumptionMinKmpl   float64 `yaml:"consumption_min_kmpl" mapstructure:"consumption_min_kmpl"`
	ConsumptionMaxKmpl   float64 `yaml:"consumption_max_kmpl" mapstructure:"consumption_max_kmpl"`
	EmissionsMaxGkm      float64 `yaml:"emissions_max_gkm" mapstructure:"emissions_max_gkm"`
	PowerMinHP           float64 `yaml:"power_min_hp" mapstructure:"power_min_hp"`
	PowerMaxHP           float64 `yaml:"power_max_hp" mapstructure:"power_max_hp"`
	AccelerationMinSecs  float64 `yaml:"acceleration_min_secs" mapstructure:"acceleration_min_secs"`
	AccelerationMaxSecs  float64 `yaml:"acceleration_max_secs" mapstructure:"acceleration_max_secs"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// MatchConfig configures the comparator.
type MatchConfig struct {
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"`
	PriceChangePct float64 `yaml:"price_change_pct" mapstructure:"price_change_pct"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEASING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.ledger_driver", "postgres")
	v.SetDefault("store.ledger_path", "ledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("budget.per_document_cents", 500)    // 5 kr per document
	v.SetDefault("budget.daily_limit_cents", 10000)   // 100 kr/day
	v.SetDefault("budget.monthly_limit_cents", 150000) // 1 500 kr/month

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.cost_per_ktokens_cents", 3)
	v.SetDefault("mistral.base_url", "https://api.mistral.ai")
	v.SetDefault("mistral.model", "mistral-large-latest")
	v.SetDefault("mistral.cost_per_ktokens_cents", 1)

	v.SetDefault("extraction.strategy", "primary_with_fallback")
	v.SetDefault("extraction.max_retries", 3)
	v.SetDefault("extraction.base_timeout_secs", 60)
	v.SetDefault("extraction.timeout_secs_per_10kb", 10)
	v.SetDefault("extraction.provider_rate_per_min", 20)
	v.SetDefault("extraction.confidence_threshold", 0.7)
	v.SetDefault("extraction.locale", "da")

	v.SetDefault("validation.monthly_min_cents", 100000)    // 1 000 kr
	v.SetDefault("validation.monthly_max_cents", 2000000)   // 20 000 kr
	v.SetDefault("validation.annual_km_min", 10000)
	v.SetDefault("validation.annual_km_max", 50000)
	v.SetDefault("validation.co2_tax_ceiling_cents", 1000000) // 10 000 kr
	v.SetDefault("validation.consumption_min_kmpl", 5.0)
	v.SetDefault("validation.consumption_max_kmpl", 40.0)
	v.SetDefault("validation.emissions_max_gkm", 350.0)
	v.SetDefault("validation.power_min_hp", 40.0)
	v.SetDefault("validation.power_max_hp", 1200.0)
	v.SetDefault("validation.acceleration_min_secs", 2.0)
	v.SetDefault("validation.acceleration_max_secs", 25.0)
	v.SetDefault("validation.confidence_threshold", 0.7)

	v.SetDefault("match.threshold", 0.85)
	v.SetDefault("match.price_change_pct", 1.0)

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
