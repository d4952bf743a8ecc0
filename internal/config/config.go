package config

import (
	"time"

	"github.com/toolprint/superego/internal/sanitize"
)

// Config is superego's top-level configuration: where the transports
// listen, where the rule document lives, how the AI Sampler and Circuit
// Breaker are tuned, and how the Audit Sink and Health Monitor are sized.
// Trimmed from the teacher's Config down to the concerns this gateway
// actually has -- no storage retention/redaction rules, no detection
// playbooks, no evolution/spawn/skills/messaging governance sections.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Rules    RulesConfig    `yaml:"rules"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Sanitize sanitize.Config `yaml:"sanitize"`
	Audit    AuditConfig    `yaml:"audit"`
	Health   HealthConfig   `yaml:"health"`
}

// ServerConfig controls the transport boundary: which adapters are active
// and how verbosely the gateway logs.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"` // empty disables the HTTP gateway
	Stdio    bool   `yaml:"stdio"`     // run the stdio hook transport on stdin/stdout
	LogLevel string `yaml:"log_level"`
}

// RulesConfig points at the rule document the Policy Store loads and
// hot-reloads.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// SamplerConfig tunes the AI Sampler's Circuit Breaker. The LLM endpoint
// itself is configured via SUPEREGO_LLM_* environment variables
// (sampler.FromEnv) rather than the rule file, keeping credentials out of
// version-controlled config.
type SamplerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// AuditConfig sizes the in-memory Audit Sink and optionally points it at a
// persistent SQLite backing store.
type AuditConfig struct {
	Capacity   int    `yaml:"capacity"`
	SQLitePath string `yaml:"sqlite_path"` // empty disables persistence
}

// HealthConfig tunes the Health Monitor's host-metrics poll cadence.
type HealthConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns a Config with sensible defaults for zero-config
// startup, mirroring the teacher's DefaultConfig but scoped to this
// gateway's components.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8737",
			Stdio:    false,
			LogLevel: "info",
		},
		Rules: RulesConfig{
			Path: "config/rules.yaml",
		},
		Sampler: SamplerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			OperationTimeout: 10 * time.Second,
		},
		Sanitize: sanitize.Config{
			Enabled: true,
		},
		Audit: AuditConfig{
			Capacity: 10_000,
		},
		Health: HealthConfig{
			PollInterval: 5 * time.Second,
		},
	}
}
