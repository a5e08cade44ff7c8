// Package config loads schedulerd's configuration: scalar knobs from
// environment variables via small envStr/envInt helpers, and the
// per-model, per-priority-level policy table from an optional YAML file
// via viper, since that table's nesting does not fit flat env vars
// cleanly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

// Config holds all configuration for the scheduler daemon.
type Config struct {
	// Common
	NodeID string

	// RPC / dashboard
	RPCPort       int
	DashboardPort int
	MetricsPort   int

	// Models to instantiate at startup, beyond whatever names ModelsFile's
	// policy table already lists.
	Models       []string
	PollInterval time.Duration

	// Runner
	RunnerType    string // "simulation" or "onnx"
	ONNXModelPath string
	ONNXUseGPU    bool
	UseNVML       string // "auto", "true", "false"

	// ModelsFile, if set, points at a YAML file describing per-model
	// scheduler policy. Empty means every model gets DefaultModelPolicy.
	ModelsFile string

	// DefaultModelPolicy applies to any model not named in ModelsFile.
	DefaultModelPolicy ModelPolicy

	// ModelPolicies holds the per-model overrides read from ModelsFile,
	// keyed by model name.
	ModelPolicies map[string]ModelPolicy
}

// ModelPolicy is the YAML-shaped configuration for one model's scheduler:
// its priority level count, per-level queue policy, and batching knobs.
// Mirrors scheduler.Config but with mapstructure tags and scalar US fields
// for readability in the config file.
type ModelPolicy struct {
	PriorityLevels        uint32                 `mapstructure:"priority_levels"`
	DefaultPolicy         LevelPolicy            `mapstructure:"default_policy"`
	LevelOverrides        map[uint32]LevelPolicy `mapstructure:"level_overrides"`
	MaxPreferredBatchSize uint64                 `mapstructure:"max_preferred_batch_size"`
	BatcherDelayUS        uint64                 `mapstructure:"batcher_delay_us"`
	EnforceEqualShape     map[string]bool        `mapstructure:"enforce_equal_shape"`
}

// LevelPolicy is one priority level's queue policy, as read from YAML.
type LevelPolicy struct {
	MaxQueueSize         uint64 `mapstructure:"max_queue_size"`
	DefaultTimeoutUS     uint64 `mapstructure:"default_timeout_us"`
	AllowTimeoutOverride bool   `mapstructure:"allow_timeout_override"`
	// TimeoutAction is "reject" or "delay"; default "reject".
	TimeoutAction string `mapstructure:"timeout_action"`
}

// ToSchedulerPolicy converts the YAML-shaped policy into scheduler.QueuePolicy.
func (p LevelPolicy) ToSchedulerPolicy() scheduler.QueuePolicy {
	action := scheduler.ActionReject
	if p.TimeoutAction == "delay" {
		action = scheduler.ActionDelay
	}
	return scheduler.QueuePolicy{
		MaxQueueSize:         p.MaxQueueSize,
		DefaultTimeoutUS:     p.DefaultTimeoutUS,
		AllowTimeoutOverride: p.AllowTimeoutOverride,
		TimeoutAction:        action,
	}
}

// ToSchedulerConfig resolves a ModelPolicy into the scheduler.Config the
// runtime actually consumes.
func (p ModelPolicy) ToSchedulerConfig(runnerID int64) scheduler.Config {
	overrides := make(map[uint32]scheduler.QueuePolicy, len(p.LevelOverrides))
	for level, lp := range p.LevelOverrides {
		overrides[level] = lp.ToSchedulerPolicy()
	}
	return scheduler.Config{
		PriorityLevels:        p.PriorityLevels,
		DefaultPolicy:         p.DefaultPolicy.ToSchedulerPolicy(),
		PolicyOverrides:       overrides,
		MaxPreferredBatchSize: p.MaxPreferredBatchSize,
		BatcherDelayUS:        p.BatcherDelayUS,
		EnforceEqualShape:     p.EnforceEqualShape,
		RunnerID:              runnerID,
	}
}

// Load reads scalar settings from the environment and, if ModelsFile is
// set, the per-model policy table from that file. A set ModelsFile that
// cannot be read or decoded makes Load return an error.
func Load() (*Config, error) {
	c := &Config{
		NodeID:        envStr("NODE_ID", "schedulerd-0"),
		RPCPort:       envInt("RPC_PORT", 50051),
		DashboardPort: envInt("DASHBOARD_PORT", 8080),
		MetricsPort:   envInt("METRICS_PORT", 9090),
		PollInterval:  time.Duration(envInt("POLL_INTERVAL_MS", 500)) * time.Millisecond,
		RunnerType:    envStr("RUNNER_TYPE", "simulation"),
		ONNXModelPath: envStr("ONNX_MODEL_PATH", ""),
		ONNXUseGPU:    envStr("ONNX_USE_GPU", "false") == "true",
		UseNVML:       envStr("USE_NVML", "auto"),
		ModelsFile:    envStr("MODELS_FILE", ""),
		DefaultModelPolicy: ModelPolicy{
			PriorityLevels: uint32(envInt("DEFAULT_PRIORITY_LEVELS", 0)),
			DefaultPolicy: LevelPolicy{
				MaxQueueSize:     uint64(envInt("DEFAULT_MAX_QUEUE_SIZE", 0)),
				DefaultTimeoutUS: uint64(envInt("DEFAULT_TIMEOUT_US", 0)),
				TimeoutAction:    envStr("DEFAULT_TIMEOUT_ACTION", "reject"),
			},
			MaxPreferredBatchSize: uint64(envInt("DEFAULT_MAX_BATCH_SIZE", 8)),
			BatcherDelayUS:        uint64(envInt("DEFAULT_BATCHER_DELAY_US", 0)),
		},
		ModelPolicies: map[string]ModelPolicy{},
	}

	if names := os.Getenv("MODELS"); names != "" {
		c.Models = splitNonEmpty(names, ',')
	}

	if c.ModelsFile == "" {
		return c, nil
	}

	v := viper.New()
	v.SetConfigFile(c.ModelsFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}

	var policies map[string]ModelPolicy
	if err := v.Unmarshal(&policies); err != nil {
		return nil, fmt.Errorf("decode models file: %w", err)
	}
	c.ModelPolicies = policies

	return c, nil
}

// PolicyFor resolves the ModelPolicy for a named model, falling back to
// DefaultModelPolicy when unconfigured.
func (c *Config) PolicyFor(model string) ModelPolicy {
	if p, ok := c.ModelPolicies[model]; ok {
		return p
	}
	return c.DefaultModelPolicy
}

// AllModels returns the union of Models and the names found in
// ModelsFile's policy table, the full set schedulerd should instantiate a
// scheduler for at startup.
func (c *Config) AllModels() []string {
	seen := make(map[string]bool, len(c.Models)+len(c.ModelPolicies))
	var out []string
	for _, m := range c.Models {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for m := range c.ModelPolicies {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
