package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GuardrailProfile holds the default constraints an owner applies when
// onboarding a new agent.
type GuardrailProfile struct {
	Name string `yaml:"name" json:"name"`

	// Allowance defaults
	AllowanceAmount     int64 `yaml:"allowance_amount" json:"allowance_amount"`
	AllowanceTTLSeconds int64 `yaml:"allowance_ttl_seconds" json:"allowance_ttl_seconds"`

	// Stream defaults
	StreamRatePerSecond int64 `yaml:"stream_rate_per_second" json:"stream_rate_per_second"`
	StreamCap           int64 `yaml:"stream_cap" json:"stream_cap"`

	// Rate-window defaults
	RateMaxAmount     int64 `yaml:"rate_max_amount" json:"rate_max_amount"`
	RateWindowSeconds int64 `yaml:"rate_window_seconds" json:"rate_window_seconds"`

	// Time-lock defaults
	TimelockDelaySeconds int64 `yaml:"timelock_delay_seconds" json:"timelock_delay_seconds"`
}

// DefaultProfile returns conservative defaults.
func DefaultProfile() *GuardrailProfile {
	return &GuardrailProfile{
		Name:                 "default",
		AllowanceAmount:      10_000,
		AllowanceTTLSeconds:  3600,
		StreamRatePerSecond:  10,
		StreamCap:            100_000,
		RateMaxAmount:        50_000,
		RateWindowSeconds:    86_400,
		TimelockDelaySeconds: 600,
	}
}

// LoadProfile reads and validates a guardrail profile from a YAML file.
func LoadProfile(path string) (*GuardrailProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p GuardrailProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile's numeric bounds.
func (p *GuardrailProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	for _, f := range []struct {
		name  string
		value int64
	}{
		{"allowance_amount", p.AllowanceAmount},
		{"allowance_ttl_seconds", p.AllowanceTTLSeconds},
		{"stream_rate_per_second", p.StreamRatePerSecond},
		{"stream_cap", p.StreamCap},
		{"rate_max_amount", p.RateMaxAmount},
		{"rate_window_seconds", p.RateWindowSeconds},
		{"timelock_delay_seconds", p.TimelockDelaySeconds},
	} {
		if f.value <= 0 {
			return fmt.Errorf("profile %s: %s must be positive, got %d", p.Name, f.name, f.value)
		}
	}
	return nil
}
