package config

import (
	"errors"
	"time"

	"campusguard/internal/utils"
)

const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

type EmergencyConfig struct {
	EscalationTimeout  time.Duration `yaml:"escalation_timeout"`
	ThrottleInterval   time.Duration `yaml:"throttle_interval"`
	NearestFanOut      int           `yaml:"nearest_fanout"`
	ResolutionNotesMax int           `yaml:"resolution_notes_max"`
	StateBackend       string        `yaml:"state_backend"`
	GuardianStaleAfter time.Duration `yaml:"guardian_stale_after"`
	StaleSweepSpec     string        `yaml:"stale_sweep_spec"`
	PersistRetrySpec   string        `yaml:"persist_retry_spec"`
	OnCallNumbers      []string      `yaml:"oncall_numbers"`
	PushGuardianTopic  string        `yaml:"push_guardian_topic"`
	PushOnCallTokens   []string      `yaml:"push_oncall_tokens"`
}

func loadEmergencyConfig() *EmergencyConfig {
	return &EmergencyConfig{
		EscalationTimeout:  getEnvAsDuration("ESCALATION_TIMEOUT", utils.DefaultEscalationTimeout),
		ThrottleInterval:   getEnvAsDuration("THROTTLE_INTERVAL", utils.DefaultThrottleInterval),
		NearestFanOut:      getEnvAsInt("NEAREST_FANOUT", utils.DefaultNearestFanOut),
		ResolutionNotesMax: getEnvAsInt("RESOLUTION_NOTES_MAX", utils.DefaultResolutionNotesMax),
		StateBackend:       getEnv("STATE_BACKEND", StateBackendMemory),
		GuardianStaleAfter: getEnvAsDuration("GUARDIAN_STALE_AFTER", utils.DefaultGuardianStaleAfter),
		StaleSweepSpec:     getEnv("GUARDIAN_STALE_SWEEP_SPEC", "@every 1m"),
		PersistRetrySpec:   getEnv("PERSIST_RETRY_SPEC", "@every 10s"),
		OnCallNumbers:      getEnvAsSlice("ONCALL_NUMBERS", []string{}),
		PushGuardianTopic:  getEnv("PUSH_GUARDIAN_TOPIC", "guardians"),
		PushOnCallTokens:   getEnvAsSlice("PUSH_ONCALL_TOKENS", []string{}),
	}
}

func (c *EmergencyConfig) Validate() error {
	if c.EscalationTimeout <= 0 {
		return errors.New("ESCALATION_TIMEOUT must be positive")
	}
	if c.ThrottleInterval <= 0 {
		return errors.New("THROTTLE_INTERVAL must be positive")
	}
	if c.NearestFanOut <= 0 {
		return errors.New("NEAREST_FANOUT must be positive")
	}
	if c.ResolutionNotesMax <= 0 {
		return errors.New("RESOLUTION_NOTES_MAX must be positive")
	}
	if c.StateBackend != StateBackendMemory && c.StateBackend != StateBackendRedis {
		return errors.New("STATE_BACKEND must be memory or redis")
	}
	return nil
}
