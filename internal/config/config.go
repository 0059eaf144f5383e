// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/emontero/straddle-roller/internal/models"
)

// Defaults applied when optional fields are unset.
const (
	defaultDaysPerYear    = 365.0
	defaultAnnualization  = 252.0
	defaultMultiplier     = 100
	defaultInitialCash    = 100000.0
	defaultExecutionSims  = 20000
	defaultDashboardPort  = 8080
	defaultOutputDir      = "results"
	defaultVolWindow      = 21
	defaultVolCap         = 2.0
)

// Config represents the complete application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Data      DataConfig      `yaml:"data"`
	Vol       VolConfig       `yaml:"volatility"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Hedge     HedgeConfig     `yaml:"hedge"`
	Execution ExecutionConfig `yaml:"execution"`
	Output    OutputConfig    `yaml:"output"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DataConfig selects and parameterizes the market data provider.
type DataConfig struct {
	Provider      string `yaml:"provider"` // csv | http | synthetic
	Dir           string `yaml:"dir"`      // csv: directory holding <symbol>.csv
	BaseURL       string `yaml:"base_url"` // http: daily-bars endpoint
	Symbol        string `yaml:"symbol"`
	RefSymbol     string `yaml:"ref_symbol"` // volatility index series
	SyntheticSeed uint64 `yaml:"synthetic_seed"`
	SyntheticDays int    `yaml:"synthetic_days"`
	StartDate     string `yaml:"start_date"` // synthetic: first bar date, YYYY-MM-DD
}

// VolConfig parameterizes the blended volatility proxy.
type VolConfig struct {
	Window         int     `yaml:"window"`
	Annualization  float64 `yaml:"annualization"`
	ExternalWeight float64 `yaml:"external_weight"`
	Floor          float64 `yaml:"floor"`
	Cap            float64 `yaml:"cap"`
}

// StrategyConfig defines the straddle roll and sizing parameters.
type StrategyConfig struct {
	TargetDTE       int     `yaml:"target_dte"`
	RollFrequency   string  `yaml:"roll_frequency"` // W | M
	StrikeIncrement float64 `yaml:"strike_increment"`
	Contracts       int     `yaml:"contracts"`
	Multiplier      int     `yaml:"multiplier"`
	InitialCash     float64 `yaml:"initial_cash"`
}

// PricingConfig holds the market parameters for the pricing engine.
type PricingConfig struct {
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
	DividendYield float64 `yaml:"dividend_yield"`
	DaysPerYear   float64 `yaml:"days_per_year"`
}

// HedgeConfig controls the daily delta hedge with the underlying.
type HedgeConfig struct {
	Enabled            bool    `yaml:"enabled"`
	TargetDelta        float64 `yaml:"target_delta"`
	RebalanceThreshold float64 `yaml:"rebalance_threshold"`
}

// ExecutionConfig parameterizes the legging-cost simulation.
type ExecutionConfig struct {
	ComboSlippageBps float64 `yaml:"combo_slippage_bps"`
	LegSlippageBps   float64 `yaml:"leg_slippage_bps"`
	LegDelaySeconds  float64 `yaml:"leg_delay_seconds"`
	NumSims          int     `yaml:"num_sims"`
	Seed             uint64  `yaml:"seed"`
	Workers          int     `yaml:"workers"`
	LegOrder         string  `yaml:"leg_order"` // C_then_P | P_then_C
}

// OutputConfig defines where run artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DashboardConfig defines the optional results HTTP server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads, expands and validates the configuration file at configPath.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Vol.Window == 0 {
		c.Vol.Window = defaultVolWindow
	}
	if c.Vol.Annualization == 0 {
		c.Vol.Annualization = defaultAnnualization
	}
	// A zero external weight or floor is meaningful, so neither is defaulted.
	if c.Vol.Cap == 0 {
		c.Vol.Cap = defaultVolCap
	}
	if c.Strategy.Multiplier == 0 {
		c.Strategy.Multiplier = defaultMultiplier
	}
	if c.Strategy.Contracts == 0 {
		c.Strategy.Contracts = 1
	}
	if c.Strategy.InitialCash == 0 {
		c.Strategy.InitialCash = defaultInitialCash
	}
	if c.Pricing.DaysPerYear == 0 {
		c.Pricing.DaysPerYear = defaultDaysPerYear
	}
	if c.Execution.NumSims == 0 {
		c.Execution.NumSims = defaultExecutionSims
	}
	if c.Execution.LegOrder == "" {
		c.Execution.LegOrder = "C_then_P"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	if c.Data.RefSymbol == "" {
		c.Data.RefSymbol = "VIX"
	}
	if c.Data.SyntheticDays == 0 {
		c.Data.SyntheticDays = 756
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug|info|warn|error, got %q", c.LogLevel)
	}

	switch c.Data.Provider {
	case "csv":
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for the csv provider")
		}
	case "http":
		if c.Data.BaseURL == "" {
			return fmt.Errorf("data.base_url is required for the http provider")
		}
	case "synthetic":
		if c.Data.StartDate != "" {
			if _, err := time.Parse("2006-01-02", c.Data.StartDate); err != nil {
				return fmt.Errorf("data.start_date must be YYYY-MM-DD: %w", err)
			}
		}
	default:
		return fmt.Errorf("data.provider must be csv, http or synthetic, got %q", c.Data.Provider)
	}
	if c.Data.Symbol == "" {
		return fmt.Errorf("data.symbol is required")
	}
	if c.Data.Symbol == c.Data.RefSymbol {
		return fmt.Errorf("data.symbol and data.ref_symbol must differ")
	}

	if c.Vol.Window < 2 {
		return fmt.Errorf("volatility.window must be >= 2, got %d", c.Vol.Window)
	}
	if c.Vol.ExternalWeight < 0 || c.Vol.ExternalWeight > 1 {
		return fmt.Errorf("volatility.external_weight must be in [0,1], got %v", c.Vol.ExternalWeight)
	}
	if c.Vol.Floor < 0 || c.Vol.Cap <= 0 || c.Vol.Floor > c.Vol.Cap {
		return fmt.Errorf("volatility floor/cap invalid: floor=%v cap=%v", c.Vol.Floor, c.Vol.Cap)
	}

	if !models.RollFrequency(c.Strategy.RollFrequency).Valid() {
		return fmt.Errorf("strategy.roll_frequency must be %q or %q, got %q",
			models.RollWeekly, models.RollMonthly, c.Strategy.RollFrequency)
	}
	if c.Strategy.TargetDTE <= 0 {
		return fmt.Errorf("strategy.target_dte must be > 0, got %d", c.Strategy.TargetDTE)
	}
	if c.Strategy.StrikeIncrement < 0 {
		return fmt.Errorf("strategy.strike_increment must be >= 0, got %v", c.Strategy.StrikeIncrement)
	}
	if c.Strategy.Contracts < 1 || c.Strategy.Multiplier < 1 {
		return fmt.Errorf("strategy.contracts and strategy.multiplier must be >= 1")
	}
	if c.Strategy.InitialCash <= 0 {
		return fmt.Errorf("strategy.initial_cash must be > 0, got %v", c.Strategy.InitialCash)
	}

	if c.Pricing.DaysPerYear <= 0 {
		return fmt.Errorf("pricing.days_per_year must be > 0, got %v", c.Pricing.DaysPerYear)
	}
	if c.Pricing.DividendYield < 0 {
		return fmt.Errorf("pricing.dividend_yield must be >= 0, got %v", c.Pricing.DividendYield)
	}

	if c.Hedge.Enabled && c.Hedge.RebalanceThreshold < 0 {
		return fmt.Errorf("hedge.rebalance_threshold must be >= 0, got %v", c.Hedge.RebalanceThreshold)
	}

	if c.Execution.NumSims < 1 {
		return fmt.Errorf("execution.num_sims must be >= 1, got %d", c.Execution.NumSims)
	}
	if c.Execution.ComboSlippageBps < 0 || c.Execution.LegSlippageBps < 0 {
		return fmt.Errorf("execution slippage bps must be >= 0")
	}
	if c.Execution.LegDelaySeconds < 0 {
		return fmt.Errorf("execution.leg_delay_seconds must be >= 0, got %v", c.Execution.LegDelaySeconds)
	}
	switch c.Execution.LegOrder {
	case "C_then_P", "P_then_C":
	default:
		return fmt.Errorf("execution.leg_order must be C_then_P or P_then_C, got %q", c.Execution.LegOrder)
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in [1,65535], got %d", c.Dashboard.Port)
	}

	return nil
}
