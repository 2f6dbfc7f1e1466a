// Package config handles loading and validating fleetmon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level fleetmon configuration.
type Config struct {
	Listen             string               `yaml:"listen"`
	DBPath             string               `yaml:"db_path"`
	ReportsDir         string               `yaml:"reports_dir"`
	LogLevel           string               `yaml:"log_level"`
	LogFormat          string               `yaml:"log_format"`
	WorkerPoolSize     int                  `yaml:"worker_pool_size"`
	CollectionInterval Duration             `yaml:"collection_interval"`
	ReportInterval     Duration             `yaml:"report_interval"`
	CacheTTL           Duration             `yaml:"cache_ttl"`
	ReportRecipient    string               `yaml:"report_recipient"`
	Alerts             AlertsConfig         `yaml:"alerts"`
	Queue              QueueConfig          `yaml:"queue"`
	Notifications      []NotificationConfig `yaml:"notifications"`
	Servers            []ServerConfig       `yaml:"servers"`
}

// AlertsConfig holds the numeric ceilings for alert rules. A value must be
// strictly exceeded to raise an alert.
type AlertsConfig struct {
	CPUThreshold          float64 `yaml:"cpu_threshold"`           // percent
	MemoryThreshold       float64 `yaml:"memory_threshold"`        // percent
	ResponseTimeThreshold float64 `yaml:"response_time_threshold"` // milliseconds
}

// QueueConfig selects the background job queue.
type QueueConfig struct {
	Type          string `yaml:"type"` // "memory" or "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
}

// ServerConfig registers a server at startup. Servers are matched by name.
type ServerConfig struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Description string `yaml:"description,omitempty"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, defaults
// and environment variables are used. If a path is given and the file does
// not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("reports_dir is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if c.CollectionInterval.Duration <= 0 {
		return fmt.Errorf("collection_interval must be > 0")
	}
	if c.ReportInterval.Duration <= 0 {
		return fmt.Errorf("report_interval must be > 0")
	}
	if c.CacheTTL.Duration < 0 {
		return fmt.Errorf("cache_ttl must be >= 0")
	}
	if c.ReportRecipient == "" {
		return fmt.Errorf("report_recipient is required")
	}

	if c.Alerts.CPUThreshold < 0 || c.Alerts.CPUThreshold > 100 {
		return fmt.Errorf("alerts.cpu_threshold must be between 0 and 100")
	}
	if c.Alerts.MemoryThreshold < 0 || c.Alerts.MemoryThreshold > 100 {
		return fmt.Errorf("alerts.memory_threshold must be between 0 and 100")
	}
	if c.Alerts.ResponseTimeThreshold < 0 {
		return fmt.Errorf("alerts.response_time_threshold must be >= 0")
	}

	switch c.Queue.Type {
	case "memory":
	case "redis":
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("queue.redis_addr is required for the redis queue")
		}
	default:
		return fmt.Errorf("queue.type: unknown type %q (expected memory or redis)", c.Queue.Type)
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	return nil
}

func defaults() *Config {
	return &Config{
		Listen:             ":8080",
		DBPath:             "/data/fleetmon.db",
		ReportsDir:         "/data/reports",
		LogLevel:           "info",
		LogFormat:          "text",
		WorkerPoolSize:     4,
		CollectionInterval: Duration{2 * time.Minute},
		ReportInterval:     Duration{24 * time.Hour},
		CacheTTL:           Duration{time.Minute},
		ReportRecipient:    "admin@fleetmon.local",
		Alerts: AlertsConfig{
			CPUThreshold:          80,
			MemoryThreshold:       85,
			ResponseTimeThreshold: 1000,
		},
		Queue: QueueConfig{
			Type:      "memory",
			KeyPrefix: "fleetmon:jobs",
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("FLEETMON_LISTEN", &cfg.Listen)
	setString("FLEETMON_DB_PATH", &cfg.DBPath)
	setString("FLEETMON_REPORTS_DIR", &cfg.ReportsDir)
	setString("FLEETMON_LOG_LEVEL", &cfg.LogLevel)
	setString("FLEETMON_LOG_FORMAT", &cfg.LogFormat)
	setString("FLEETMON_REPORT_RECIPIENT", &cfg.ReportRecipient)

	if v := os.Getenv("FLEETMON_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}
	for key, dst := range map[string]*Duration{
		"FLEETMON_COLLECTION_INTERVAL": &cfg.CollectionInterval,
		"FLEETMON_REPORT_INTERVAL":     &cfg.ReportInterval,
	} {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				dst.Duration = d
			}
		}
	}
	for key, dst := range map[string]*float64{
		"FLEETMON_CPU_THRESHOLD":           &cfg.Alerts.CPUThreshold,
		"FLEETMON_MEMORY_THRESHOLD":        &cfg.Alerts.MemoryThreshold,
		"FLEETMON_RESPONSE_TIME_THRESHOLD": &cfg.Alerts.ResponseTimeThreshold,
	} {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	// A Redis address alone switches the queue to Redis.
	if addr := os.Getenv("FLEETMON_REDIS_ADDR"); addr != "" {
		cfg.Queue.Type = "redis"
		cfg.Queue.RedisAddr = addr
	}
	setString("FLEETMON_REDIS_PASSWORD", &cfg.Queue.RedisPassword)

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("FLEETMON_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("FLEETMON_NTFY_TOPIC")
			if topic == "" {
				topic = "fleetmon-alerts"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}

	// Comma-separated name=address pairs (only if no YAML servers configured).
	if len(cfg.Servers) == 0 {
		for _, pair := range strings.Split(os.Getenv("FLEETMON_SERVERS"), ",") {
			name, addr, _ := strings.Cut(strings.TrimSpace(pair), "=")
			if name == "" {
				continue
			}
			cfg.Servers = append(cfg.Servers, ServerConfig{Name: name, Address: addr})
		}
	}
}
