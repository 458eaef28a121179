package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "conductor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CONDUCTOR_PORT")
	setString(&cfg.Server.CORSOrigin, "CONDUCTOR_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "CONDUCTOR_REQUEST_TIMEOUT")
	setString(&cfg.Logging.Level, "CONDUCTOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONDUCTOR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONDUCTOR_LOG_ASYNC")

	// Storage
	setString(&cfg.Store.Driver, "CONDUCTOR_STORE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONDUCTOR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONDUCTOR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONDUCTOR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONDUCTOR_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CONDUCTOR_PG_HEALTH_CHECK")
	setString(&cfg.SQLite.Path, "CONDUCTOR_SQLITE_PATH")

	// Messaging and cache
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "CONDUCTOR_NATS_STREAM")
	setDuration(&cfg.NATS.RequestTTL, "CONDUCTOR_NATS_REQUEST_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "CONDUCTOR_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "CONDUCTOR_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "CONDUCTOR_CACHE_TTL")

	// Telemetry
	setBool(&cfg.OTEL.Enabled, "CONDUCTOR_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "CONDUCTOR_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "CONDUCTOR_OTEL_SAMPLE_RATE")
	setBool(&cfg.OTEL.Prometheus, "CONDUCTOR_PROMETHEUS")

	setInt(&cfg.Breaker.MaxFailures, "CONDUCTOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONDUCTOR_BREAKER_TIMEOUT")

	// Scheduler
	setInt(&cfg.Scheduler.MaxParallel, "CONDUCTOR_MAX_PARALLEL")
	setDuration(&cfg.Scheduler.TaskTimeout, "CONDUCTOR_TASK_TIMEOUT")
	setInt(&cfg.Scheduler.MaxRetries, "CONDUCTOR_MAX_RETRIES")
	setDuration(&cfg.Scheduler.RetryBackoff, "CONDUCTOR_RETRY_BACKOFF")
	setDuration(&cfg.Scheduler.StallThreshold, "CONDUCTOR_STALL_THRESHOLD")
	setDuration(&cfg.Scheduler.Retention, "CONDUCTOR_RETENTION")

	// Registry
	setFloat64(&cfg.Registry.Alpha, "CONDUCTOR_SCORE_ALPHA")
	setDuration(&cfg.Registry.ExpectedLatency, "CONDUCTOR_EXPECTED_LATENCY")
	setDuration(&cfg.Registry.HeartbeatInterval, "CONDUCTOR_HEARTBEAT_INTERVAL")
	setInt(&cfg.Registry.MaxMissed, "CONDUCTOR_HEARTBEAT_MAX_MISSED")
	setInt(&cfg.Registry.FaultThreshold, "CONDUCTOR_FAULT_THRESHOLD")

	// Alerting and channels
	setString(&cfg.Alerting.RulesFile, "CONDUCTOR_RULES_FILE")
	setInt(&cfg.Alerting.MaxAttempts, "CONDUCTOR_ALERT_MAX_ATTEMPTS")
	setChannel(&cfg.Channels.Email, "EMAIL")
	setChannel(&cfg.Channels.Slack, "SLACK")
	setChannel(&cfg.Channels.Discord, "DISCORD")
	setChannel(&cfg.Channels.Teams, "TEAMS")
	setChannel(&cfg.Channels.SMS, "SMS")

	setString(&cfg.Templates.Dir, "CONDUCTOR_TEMPLATE_DIR")
	setString(&cfg.Auth.APIKeyHash, "CONDUCTOR_API_KEY_HASH")
	setBool(&cfg.MCP.Enabled, "CONDUCTOR_MCP_ENABLED")
}

// setChannel reads CONDUCTOR_<NAME>_ENABLED, _TARGET and _MIN_SEVERITY plus
// the secret-bearing CONDUCTOR_<NAME>_URL and _PASSWORD into settings.
func setChannel(ch *Channel, name string) {
	prefix := "CONDUCTOR_" + name + "_"
	setBool(&ch.Enabled, prefix+"ENABLED")
	setString(&ch.Target, prefix+"TARGET")
	setString(&ch.MinSeverity, prefix+"MIN_SEVERITY")
	for _, key := range []string{"url", "password", "token"} {
		if v := os.Getenv(prefix + strings.ToUpper(key)); v != "" {
			if ch.Settings == nil {
				ch.Settings = map[string]string{}
			}
			ch.Settings[key] = v
		}
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return errors.New("sqlite.path is required")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", cfg.Store.Driver)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Scheduler.MaxParallel < 1 {
		return errors.New("scheduler.max_parallel must be >= 1")
	}
	if cfg.Scheduler.TaskTimeout <= 0 {
		return errors.New("scheduler.task_timeout must be > 0")
	}
	if cfg.Scheduler.MaxRetries < 0 {
		return errors.New("scheduler.max_retries must be >= 0")
	}
	if cfg.Registry.Alpha <= 0 || cfg.Registry.Alpha > 1 {
		return errors.New("registry.alpha must be in (0,1]")
	}
	if cfg.Registry.FaultThreshold < 1 {
		return errors.New("registry.fault_threshold must be >= 1")
	}
	if cfg.Alerting.MaxAttempts < 1 {
		return errors.New("alerting.max_attempts must be >= 1")
	}
	for i, a := range cfg.Agents {
		if a.ID == "" || a.Endpoint == "" || len(a.Capabilities) == 0 {
			return fmt.Errorf("agents[%d]: id, endpoint and capabilities are required", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
