// Package config loads the small YAML document that seeds a pocketrb
// process: workspace/memory roots, provider selection, default model,
// the iteration cap, the channel list, and cron job seeds.
package config

import (
	"fmt"
	"time"
)

// ProviderConfig selects and authenticates one LLMProvider backend.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
	Region string `yaml:"region,omitempty"` // bedrock only

	// DiscoverModels enables a live ListFoundationModels call (bedrock
	// only) to refresh Models() against the account's actual model
	// access, instead of the static fallback list.
	DiscoverModels bool `yaml:"discover_models,omitempty"`
}

// ChannelConfig enables one messaging channel adapter by name.
type ChannelConfig struct {
	Name     string            `yaml:"name"`
	Enabled  bool              `yaml:"enabled"`
	Settings map[string]string `yaml:"settings,omitempty"`
}

// CronScheduleSeed mirrors the wire shape of internal/cron.Schedule.
type CronScheduleSeed struct {
	Kind     string `yaml:"kind"`
	At       string `yaml:"at,omitempty"`
	EveryMs  int64  `yaml:"every_ms,omitempty"`
	Cron     string `yaml:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty"`
}

// CronPayloadSeed mirrors the wire shape of internal/cron.Payload.
type CronPayloadSeed struct {
	Message string `yaml:"message"`
	Deliver bool   `yaml:"deliver,omitempty"`
	Channel string `yaml:"channel,omitempty"`
	ChatID  string `yaml:"chat_id,omitempty"`
}

// CronJobSeed is a job to register at startup.
type CronJobSeed struct {
	Name     string           `yaml:"name"`
	Enabled  bool             `yaml:"enabled"`
	Schedule CronScheduleSeed `yaml:"schedule"`
	Payload  CronPayloadSeed  `yaml:"payload"`
}

// AuditConfig controls the optional durable audit log attached to the
// bus's tool-execution and state-change streams.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level,omitempty"`
	Format  string `yaml:"format,omitempty"`
	Output  string `yaml:"output,omitempty"`
}

// MetricsConfig controls the tiny HTTP listener that serves /metrics and
// /healthz for the gateway command.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"` // host:port, default ":9090"
}

// Config is the root document.
type Config struct {
	WorkspaceRoot string          `yaml:"workspace_root"`
	MemoryRoot    string          `yaml:"memory_root"`
	Provider      ProviderConfig  `yaml:"provider"`
	DefaultModel  string          `yaml:"default_model"`
	IterationCap  int             `yaml:"iteration_cap"`
	LogLevel      string          `yaml:"log_level"`
	Channels      []ChannelConfig `yaml:"channels"`
	CronJobs      []CronJobSeed   `yaml:"cron_jobs"`
	Audit         AuditConfig     `yaml:"audit"`
	Metrics       MetricsConfig   `yaml:"metrics"`
}

const (
	defaultIterationCap = 25
	defaultModel        = "claude-sonnet-4-5"
	defaultLogLevel     = "info"
	defaultMetricsAddr  = ":9090"
)

// DefaultEveryMin is the minimum "every" schedule interval, kept in sync
// with internal/cron.minEvery for config validation error messages.
const DefaultEveryMin = 60 * time.Second

// applyDefaults fills in zero-valued fields with process defaults.
func (c *Config) applyDefaults() {
	if c.IterationCap <= 0 {
		c.IterationCap = defaultIterationCap
	}
	if c.DefaultModel == "" {
		c.DefaultModel = defaultModel
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		c.Metrics.Addr = defaultMetricsAddr
	}
}

// Validate checks required fields beyond what YAML decoding can enforce.
func (c *Config) Validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root is required")
	}
	if c.MemoryRoot == "" {
		return fmt.Errorf("memory_root is required")
	}
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	switch c.Provider.Name {
	case "anthropic", "openai", "bedrock":
	default:
		return fmt.Errorf("provider.name must be anthropic, openai, or bedrock, got %q", c.Provider.Name)
	}
	if c.Provider.Name != "bedrock" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required for provider %q", c.Provider.Name)
	}
	for i, job := range c.CronJobs {
		if job.Payload.Message == "" {
			return fmt.Errorf("cron_jobs[%d]: payload.message is required", i)
		}
		if job.Payload.Deliver && (job.Payload.Channel == "" || job.Payload.ChatID == "") {
			return fmt.Errorf("cron_jobs[%d]: deliver requires channel and chat_id", i)
		}
	}
	return nil
}
