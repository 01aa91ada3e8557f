// Package config loads the engine's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/outbox"
)

type Config struct {
	Timers struct {
		ResponseWindow   time.Duration `yaml:"response_window"`
		ComplianceWindow time.Duration `yaml:"compliance_window"`
		PenaltyAmount    string        `yaml:"penalty_amount"`
	} `yaml:"timers"`

	Penalty struct {
		Policy            string   `yaml:"policy"`
		Multipliers       []string `yaml:"multipliers"`
		RestartTimer      bool     `yaml:"restart_timer"`
		InsufficientFunds string   `yaml:"insufficient_funds"`
	} `yaml:"penalty"`

	Sweep struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval"`
		BatchSize int32         `yaml:"batch_size"`
		Lock      LockConfig    `yaml:"lock"`
	} `yaml:"sweep"`

	Outbox struct {
		outbox.Config `yaml:",inline"`
		Listen        bool                  `yaml:"listen"`
		Listener      outbox.ListenerConfig `yaml:"listener"`
		HealthPort    string                `yaml:"health_port"`
	} `yaml:"outbox"`

	NATS struct {
		Enabled                bool `yaml:"enabled"`
		outbox.JetStreamConfig `yaml:",inline"`
	} `yaml:"nats"`

	Server struct {
		Port string `yaml:"port"`
		// AllowNowOverride honours a caller-supplied "now" on API requests
		AllowNowOverride bool `yaml:"allow_now_override"`
	} `yaml:"server"`
}

// LockConfig enables the Redis overlap guard for the in-process sweep runner
type LockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

func Default() *Config {
	var c Config
	c.Timers.ResponseWindow = time.Hour
	c.Timers.ComplianceWindow = time.Hour
	c.Timers.PenaltyAmount = "5.00"
	c.Penalty.Policy = "flat"
	c.Penalty.InsufficientFunds = string(ledger.FundsPolicyClip)
	c.Sweep.Enabled = true
	c.Sweep.Interval = time.Minute
	c.Sweep.BatchSize = 500
	c.Sweep.Lock = LockConfig{
		Addr: "localhost:6379",
		Key:  "leaguetimers:sweep",
		TTL:  5 * time.Minute,
	}
	c.Outbox.Config = outbox.DefaultConfig()
	c.Outbox.Listen = true
	c.Outbox.Listener = outbox.DefaultListenerConfig()
	c.Outbox.HealthPort = "8081"
	c.NATS.JetStreamConfig = outbox.DefaultJetStreamConfig()
	c.Server.Port = "8080"
	return &c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		return c, c.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Timers.ResponseWindow <= 0 {
		return fmt.Errorf("timers.response_window must be positive")
	}
	if c.Timers.ComplianceWindow < time.Second {
		return fmt.Errorf("timers.compliance_window must be at least 1s")
	}
	if _, err := c.TimerDefaults(); err != nil {
		return err
	}
	if _, err := c.PenaltyPolicy(); err != nil {
		return err
	}
	if !ledger.FundsPolicy(c.Penalty.InsufficientFunds).Valid() {
		return fmt.Errorf("penalty.insufficient_funds must be %q or %q, got %q",
			ledger.FundsPolicyClip, ledger.FundsPolicyReject, c.Penalty.InsufficientFunds)
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep.batch_size must be positive")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.batch_size and outbox.poll_interval must be positive")
	}
	if c.Sweep.Lock.Enabled && c.Sweep.Lock.TTL <= 0 {
		return fmt.Errorf("sweep.lock.ttl must be positive")
	}
	return nil
}

// TimerDefaults is the timer configuration for leagues without overrides.
func (c *Config) TimerDefaults() (models.TimerConfig, error) {
	amount, err := decimal.NewFromString(c.Timers.PenaltyAmount)
	if err != nil {
		return models.TimerConfig{}, fmt.Errorf("timers.penalty_amount: %w", err)
	}
	if amount.IsNegative() {
		return models.TimerConfig{}, fmt.Errorf("timers.penalty_amount must not be negative")
	}
	return models.TimerConfig{
		ResponseWindow:   c.Timers.ResponseWindow,
		ComplianceWindow: c.Timers.ComplianceWindow,
		PenaltyAmount:    amount,
	}, nil
}

func (c *Config) PenaltyPolicy() (compliance.PenaltyPolicy, error) {
	switch c.Penalty.Policy {
	case "", "flat":
		return compliance.FlatPolicy{}, nil
	case "tiered":
		multipliers := make([]decimal.Decimal, 0, len(c.Penalty.Multipliers))
		for i, raw := range c.Penalty.Multipliers {
			m, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("penalty.multipliers[%d]: %w", i, err)
			}
			multipliers = append(multipliers, m)
		}
		return compliance.NewTieredPolicy(multipliers, c.Penalty.RestartTimer)
	default:
		return nil, fmt.Errorf("unknown penalty policy %q", c.Penalty.Policy)
	}
}

func (c *Config) FundsPolicy() ledger.FundsPolicy {
	return ledger.FundsPolicy(c.Penalty.InsufficientFunds)
}

// Path returns ENGINE_CONFIG or config.yaml.
func Path() string {
	if p := os.Getenv("ENGINE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
