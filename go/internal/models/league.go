package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LeagueSettings is the subset of the league_settings JSONB the engine reads
type LeagueSettings struct {
	Timers TimerSettings `json:"timers"`
}

// TimerSettings are per-league overrides; unset fields fall back to engine defaults
type TimerSettings struct {
	ResponseWindowSec   *int             `json:"response_window_sec,omitempty"`
	ComplianceWindowSec *int             `json:"compliance_window_sec,omitempty"`
	PenaltyAmount       *decimal.Decimal `json:"penalty_amount,omitempty"`
}

// TimerConfig is the effective timer configuration for one league
type TimerConfig struct {
	ResponseWindow   time.Duration   `json:"response_window"`
	ComplianceWindow time.Duration   `json:"compliance_window"`
	PenaltyAmount    decimal.Decimal `json:"penalty_amount"`
}

// ParseLeagueSettings decodes league_settings. Empty input yields zero settings.
func ParseLeagueSettings(raw []byte) (LeagueSettings, error) {
	var s LeagueSettings
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal league settings: %w", err)
	}
	return s, nil
}

// Apply overlays the league overrides on top of defaults
func (t TimerSettings) Apply(defaults TimerConfig) (TimerConfig, error) {
	out := defaults
	if t.ResponseWindowSec != nil {
		if *t.ResponseWindowSec <= 0 {
			return out, fmt.Errorf("response_window_sec must be positive, got %d", *t.ResponseWindowSec)
		}
		out.ResponseWindow = time.Duration(*t.ResponseWindowSec) * time.Second
	}
	if t.ComplianceWindowSec != nil {
		if *t.ComplianceWindowSec <= 0 {
			return out, fmt.Errorf("compliance_window_sec must be positive, got %d", *t.ComplianceWindowSec)
		}
		out.ComplianceWindow = time.Duration(*t.ComplianceWindowSec) * time.Second
	}
	if t.PenaltyAmount != nil {
		if t.PenaltyAmount.IsNegative() {
			return out, fmt.Errorf("penalty_amount must not be negative, got %s", t.PenaltyAmount)
		}
		out.PenaltyAmount = *t.PenaltyAmount
	}
	return out, nil
}
