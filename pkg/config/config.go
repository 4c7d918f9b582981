// Package config loads the agent configuration from a YAML file and the
// environment.
//
// Every property is named "jma.<name>"; the legacy "hdagent." prefix is
// accepted too. In the environment a property is spelled in upper case with
// dots replaced by underscores, e.g. JMA_THRESHOLDS_HEAP. The environment wins
// over the file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"GoMemoryAssistant/pkg/dump"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/hooks"
	"GoMemoryAssistant/pkg/threshold"
)

const (
	Prefix       = "jma."
	LegacyPrefix = "hdagent."
)

// Sample sources.
const (
	SourceRuntime    = "runtime"
	SourceSimulated  = "simulated"
	SourcePrometheus = "prometheus"
)

// Trigger history backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
	HistorySQLite = "sqlite"
)

// PoolThreshold is the threshold configured for one memory pool.
type PoolThreshold struct {
	Pool string
	Raw  string
	Spec threshold.Spec
}

type PrometheusConfig struct {
	URL      string
	Selector string
}

type HistoryConfig struct {
	Backend string
	Key     string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Config is the agent configuration.
type Config struct {
	Enabled        bool
	HeapDumpName   string
	HeapDumpFolder string
	HeapDumpFormat string
	LogLevel       LogLevel

	// CheckInterval is zero when not configured.
	CheckInterval time.Duration
	// MaxFrequency is nil when heap dumps are not rate limited.
	MaxFrequency *threshold.Frequency
	Thresholds   []PoolThreshold

	Commands hooks.Config

	Source     string
	Prometheus PrometheusConfig
	History    HistoryConfig
	Redis      RedisConfig
	SQLitePath string

	MetricsAddress string
	RemotePprofURL string

	// Overrides records every property that was set, for start-up logs.
	Overrides []string
	// Warnings are non-fatal issues of the configuration.
	Warnings []string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HeapDumpName:   dump.DefaultNamePattern,
		HeapDumpFolder: ".",
		HeapDumpFormat: dump.FormatPprof,
		LogLevel:       LevelError,
		Commands:       hooks.Config{Interpreter: hooks.DefaultInterpreter()},
		Source:         SourceRuntime,
		History:        HistoryConfig{Backend: HistoryMemory, Key: "memassist:triggers"},
		SQLitePath:     "memassist.db",
	}
}

// Threshold returns the threshold of pool, or nil.
func (c *Config) Threshold(pool string) *PoolThreshold {
	for i := range c.Thresholds {
		if c.Thresholds[i].Pool == pool {
			return &c.Thresholds[i]
		}
	}
	return nil
}

func (c *Config) setThreshold(pool, raw string, spec threshold.Spec) {
	if t := c.Threshold(pool); t != nil {
		t.Raw, t.Spec = raw, spec
		return
	}
	c.Thresholds = append(c.Thresholds, PoolThreshold{Pool: pool, Raw: raw, Spec: spec})
	sort.SliceStable(c.Thresholds, func(i, j int) bool {
		return poolIndex(c.Thresholds[i].Pool) < poolIndex(c.Thresholds[j].Pool)
	})
}

func poolIndex(pool string) int {
	for i, p := range health.Pools {
		if p == pool {
			return i
		}
	}
	return len(health.Pools)
}

// Load reads the YAML file at path, when path is not empty, and then the
// environment, given in os.Environ form. All invalid values are reported
// together in a *ValidationError.
func Load(path string, environ []string) (*Config, error) {
	values := make(map[string]string)
	var problems []string

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read configuration file: %w", err)
		}
		fileValues, fileProblems, err := parseFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse configuration file %s: %w", path, err)
		}
		problems = append(problems, fileProblems...)
		for k, v := range fileValues {
			values[k] = v
		}
	}

	for k, v := range fromEnviron(environ) {
		values[k] = v
	}

	return build(values, problems)
}

// FromValues builds a configuration from property values keyed by their
// full name, e.g. "jma.check_interval".
func FromValues(values map[string]string) (*Config, error) {
	names, problems := normalizeKeys(values)
	return build(names, problems)
}

func build(values map[string]string, problems []string) (*Config, error) {
	c := Default()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := strings.TrimSpace(values[name])
		if value == "" {
			continue
		}
		p := lookup(name)
		if err := p.apply(c, value); err != nil {
			problems = append(problems, invalidValue(name, value, err))
			continue
		}
		c.Overrides = append(c.Overrides,
			fmt.Sprintf("Configuration option '%s' specified with value: '%s'", Prefix+name, value))
	}

	problems = append(problems, c.validate()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	c.Warnings = c.warnings()
	return c, nil
}

// validate checks the properties that depend on each other.
func (c *Config) validate() []string {
	var problems []string
	if c.Source == SourcePrometheus && c.Prometheus.URL == "" {
		problems = append(problems, invalidValue("prometheus.url", "",
			fmt.Errorf("it is required when '%ssource' is '%s'", Prefix, SourcePrometheus)))
	}
	if c.History.Backend == HistoryRedis && c.Redis.Address == "" {
		problems = append(problems, invalidValue("redis.address", "",
			fmt.Errorf("it is required when '%shistory.backend' is '%s'", Prefix, HistoryRedis)))
	}
	if c.Enabled {
		if err := dump.ValidateFolder(c.HeapDumpFolder); err != nil {
			problems = append(problems, invalidValue("heap_dump_folder", c.HeapDumpFolder, err))
		}
	}
	return problems
}

func (c *Config) warnings() []string {
	if c.CheckInterval <= 0 {
		return nil
	}
	var warnings []string
	for _, t := range c.Thresholds {
		inc, ok := t.Spec.(threshold.IncreaseOverTimeframe)
		if !ok {
			continue
		}
		if c.CheckInterval.Milliseconds() > inc.TimeframeMillis()/2 {
			warnings = append(warnings, fmt.Sprintf(
				"the time-frame for the threshold for memory pool '%s' of %s%s is too short compared to the overall check-interval of %dms: "+
					"to ensure a good precision, the ratio between check-interval and time-frame can be at most 1:2",
				t.Pool, threshold.FormatElapsed(inc.Timeframe), inc.Unit, c.CheckInterval.Milliseconds()))
		}
	}
	return warnings
}

// parseFile flattens a YAML document into property names. The document may
// be rooted at a "jma" or "hdagent" key.
func parseFile(data []byte) (map[string]string, []string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}

	flat := make(map[string]string)
	var problems []string
	flatten("", doc, flat, &problems)

	names, unknown := normalizeKeys(flat)
	return names, append(problems, unknown...), nil
}

func flatten(prefix string, node map[string]any, out map[string]string, problems *[]string) {
	for k, v := range node {
		key := prefix + k
		switch v.(type) {
		case map[string]any, map[any]any:
			child, err := cast.ToStringMapE(v)
			if err != nil {
				*problems = append(*problems, fmt.Sprintf("The option '%s' cannot be read: %s", key, err))
				continue
			}
			flatten(key+".", child, out, problems)
		case []any:
			*problems = append(*problems, fmt.Sprintf("The option '%s' must be a single value", key))
		default:
			s, err := cast.ToStringE(v)
			if err != nil {
				*problems = append(*problems, fmt.Sprintf("The option '%s' cannot be read: %s", key, err))
				continue
			}
			out[key] = s
		}
	}
}

// normalizeKeys strips the prefixes and drops unknown keys. Keys with the
// official prefix win over legacy ones.
func normalizeKeys(values map[string]string) (map[string]string, []string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// "hdagent." sorts before "jma."
	sort.Strings(keys)

	names := make(map[string]string, len(values))
	var problems []string
	for _, key := range keys {
		name := strings.TrimPrefix(strings.TrimPrefix(key, Prefix), LegacyPrefix)
		if lookup(name) == nil {
			if name == key {
				key = Prefix + key
			}
			problems = append(problems, unknownOption(key))
			continue
		}
		names[name] = values[key]
	}
	return names, problems
}

// EnvName is the environment variable of a property.
func EnvName(name string) string {
	return "JMA_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func fromEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	values := make(map[string]string)
	for _, p := range properties {
		official := EnvName(p.name)
		legacy := "HDAGENT_" + strings.TrimPrefix(official, "JMA_")
		if v, ok := env[legacy]; ok {
			values[p.name] = v
		}
		if v, ok := env[official]; ok {
			values[p.name] = v
		}
	}
	return values
}
