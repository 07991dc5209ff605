package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	Policy        PolicyConfig
	AI            AIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WarehouseConfig struct {
	Driver          string
	Path            string
	DSN             string
	ReadOnly        bool
	Threads         int
	MemoryLimit     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

type PolicyConfig struct {
	// DeniedKeywords extends the built-in deny list; it never replaces it.
	DeniedKeywords  []string
	DefaultRowLimit int
	HardRowCeiling  int
	QueryTimeout    time.Duration
}

type AIConfig struct {
	TranslateEnabled bool
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DUCKGATE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DUCKGATE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DUCKGATE_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_WAREHOUSE_PATH", &cfg.Warehouse.Path); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGATE_WAREHOUSE_READ_ONLY", &cfg.Warehouse.ReadOnly); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGATE_WAREHOUSE_THREADS", &cfg.Warehouse.Threads); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_WAREHOUSE_MEMORY_LIMIT", &cfg.Warehouse.MemoryLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGATE_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGATE_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_WAREHOUSE_ACQUIRE_TIMEOUT", &cfg.Warehouse.AcquireTimeout); err != nil {
		return Config{}, err
	}
	if err := applyStringList(lookup, "DUCKGATE_POLICY_DENIED_KEYWORDS", &cfg.Policy.DeniedKeywords); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGATE_POLICY_DEFAULT_ROW_LIMIT", &cfg.Policy.DefaultRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGATE_POLICY_HARD_ROW_CEILING", &cfg.Policy.HardRowCeiling); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_POLICY_QUERY_TIMEOUT", &cfg.Policy.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGATE_AI_TRANSLATE_ENABLED", &cfg.AI.TranslateEnabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "DUCKGATE_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGATE_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGATE_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DUCKGATE_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGATE_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGATE_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Policy.DefaultRowLimit > cfg.Policy.HardRowCeiling {
		return Config{}, fmt.Errorf("default row limit %d exceeds hard row ceiling %d",
			cfg.Policy.DefaultRowLimit, cfg.Policy.HardRowCeiling)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "duckgate-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          "duckdb",
			Path:            "data/demo.duckdb",
			ReadOnly:        false,
			Threads:         2,
			MemoryLimit:     "512MB",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			AcquireTimeout:  2 * time.Second,
		},
		Policy: PolicyConfig{
			DefaultRowLimit: 200,
			HardRowCeiling:  10000,
			QueryTimeout:    8 * time.Second,
		},
		AI: AIConfig{
			TranslateEnabled: false,
			BaseURL:          "https://api.openai.com",
			Model:            "gpt-5",
			Temperature:      0.1,
			Timeout:          15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Warehouse.ReadOnly = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyStringList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
