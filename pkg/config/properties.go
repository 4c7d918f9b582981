package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"GoMemoryAssistant/pkg/dump"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/threshold"
)

// LogLevel is the verbosity of the agent logs.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

var logLevelNames = []string{
	LevelOff:     "off",
	LevelError:   "error",
	LevelWarning: "warning",
	LevelInfo:    "info",
	LevelDebug:   "debug",
}

func (l LogLevel) String() string {
	return logLevelNames[l]
}

// ParseLogLevel accepts off, error, warning, info and debug in any case.
func ParseLogLevel(value string) (LogLevel, error) {
	for i, name := range logLevelNames {
		if strings.EqualFold(value, name) {
			return LogLevel(i), nil
		}
	}
	return 0, fmt.Errorf("valid values are: %s", strings.Join(logLevelNames, ", "))
}

type property struct {
	name  string
	apply func(c *Config, value string) error
}

func oneOf(value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("valid values are: %s", strings.Join(valid, ", "))
}

func httpURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("it must be an absolute http or https URL")
	}
	return nil
}

func text(set func(c *Config, value string)) func(*Config, string) error {
	return func(c *Config, value string) error {
		set(c, value)
		return nil
	}
}

var properties = func() []property {
	props := []property{
		{"enabled", func(c *Config, value string) error {
			enabled, err := cast.ToBoolE(value)
			if err != nil {
				return errors.New("it must be 'true' or 'false'")
			}
			c.Enabled = enabled
			return nil
		}},
		{"heap_dump_name", func(c *Config, value string) error {
			if err := dump.ValidateNamePattern(value); err != nil {
				return err
			}
			c.HeapDumpName = value
			return nil
		}},
		{"heap_dump_folder", text(func(c *Config, v string) { c.HeapDumpFolder = v })},
		{"heap_dump_format", func(c *Config, value string) error {
			if err := oneOf(value, dump.FormatPprof, dump.FormatHeapDump); err != nil {
				return err
			}
			c.HeapDumpFormat = value
			return nil
		}},
		{"log_level", func(c *Config, value string) error {
			level, err := ParseLogLevel(value)
			if err != nil {
				return err
			}
			c.LogLevel = level
			return nil
		}},
		{"check_interval", func(c *Config, value string) error {
			interval, err := threshold.ParseInterval(value)
			if err != nil {
				return err
			}
			c.CheckInterval = interval
			return nil
		}},
		{"max_frequency", func(c *Config, value string) error {
			f, err := threshold.ParseFrequency(value)
			if err != nil {
				return err
			}
			c.MaxFrequency = &f
			return nil
		}},
		{"command.interpreter", text(func(c *Config, v string) { c.Commands.Interpreter = v })},
		{"execute.before", text(func(c *Config, v string) { c.Commands.Before = v })},
		{"execute.after", text(func(c *Config, v string) { c.Commands.After = v })},
		{"execute.on_shutdown", text(func(c *Config, v string) { c.Commands.OnShutdown = v })},
		{"source", func(c *Config, value string) error {
			if err := oneOf(value, SourceRuntime, SourceSimulated, SourcePrometheus); err != nil {
				return err
			}
			c.Source = value
			return nil
		}},
		{"prometheus.url", func(c *Config, value string) error {
			if err := httpURL(value); err != nil {
				return err
			}
			c.Prometheus.URL = value
			return nil
		}},
		{"prometheus.selector", func(c *Config, value string) error {
			if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
				return errors.New("it must be a label selector like {job=\"app\"}")
			}
			c.Prometheus.Selector = value
			return nil
		}},
		{"history.backend", func(c *Config, value string) error {
			if err := oneOf(value, HistoryMemory, HistoryRedis, HistorySQLite); err != nil {
				return err
			}
			c.History.Backend = value
			return nil
		}},
		{"history.key", text(func(c *Config, v string) { c.History.Key = v })},
		{"redis.address", text(func(c *Config, v string) { c.Redis.Address = v })},
		{"redis.password", text(func(c *Config, v string) { c.Redis.Password = v })},
		{"redis.db", func(c *Config, value string) error {
			db, err := cast.ToIntE(value)
			if err != nil || db < 0 {
				return errors.New("it must be a non-negative integer")
			}
			c.Redis.DB = db
			return nil
		}},
		{"sqlite.path", text(func(c *Config, v string) { c.SQLitePath = v })},
		{"metrics.address", text(func(c *Config, v string) { c.MetricsAddress = v })},
		{"remote.pprof_url", func(c *Config, value string) error {
			if err := httpURL(value); err != nil {
				return err
			}
			c.RemotePprofURL = value
			return nil
		}},
	}

	for _, pool := range health.Pools {
		pool := pool
		props = append(props, property{"thresholds." + pool, func(c *Config, value string) error {
			spec, err := threshold.Parse(value)
			if err != nil {
				return err
			}
			c.setThreshold(pool, value, spec)
			return nil
		}})
	}
	return props
}()

func lookup(name string) *property {
	for i := range properties {
		if properties[i].name == name {
			return &properties[i]
		}
	}
	return nil
}

// Names returns the names of all properties, without prefix.
func Names() []string {
	names := make([]string, len(properties))
	for i, p := range properties {
		names[i] = p.name
	}
	return names
}
