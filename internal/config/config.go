// Package config loads service configuration from the environment.
// Every knob has a profile-aware default, so a bare process starts in a
// sane dev shape.
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

// Provider kinds the translation layer knows how to build.
const (
	ProviderNone      = ""
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Provider      ProviderConfig
	Limits        LimitsConfig
	Session       SessionConfig
	Cache         CacheConfig
	ObjectStore   ObjectStoreConfig
	PGImport      PGImportConfig
	Demo          DemoConfig
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

// ProviderConfig selects and tunes the model fallback. An empty Kind
// runs the service on templates alone.
type ProviderConfig struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LimitsConfig caps what questions and datasets may cost.
type LimitsConfig struct {
	MaxRowLimit       int
	QueryRowCap       int
	MaxDatasetRows    int
	MaxDatasetColumns int
	MaxUploadBytes    int64
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxSessions   int
	SampleValues  int
}

type CacheConfig struct {
	Enabled    bool
	IncludeLLM bool
	MaxEntries int
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	AutoCreateBucket bool
}

type PGImportConfig struct {
	Enabled bool
	DSN     string
}

type DemoConfig struct {
	Rows            int
	Seed            int64
	SeedObjectStore bool
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
	if raw, ok := lookup("TABLETALK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TABLETALK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "TABLETALK_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_PROVIDER", &cfg.Provider.Kind); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_PROVIDER_BASE_URL", &cfg.Provider.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_PROVIDER_API_KEY", &cfg.Provider.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_PROVIDER_MODEL", &cfg.Provider.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "TABLETALK_PROVIDER_TEMPERATURE", &cfg.Provider.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_PROVIDER_MAX_TOKENS", &cfg.Provider.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_PROVIDER_TIMEOUT", &cfg.Provider.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_MAX_ROW_LIMIT", &cfg.Limits.MaxRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_QUERY_ROW_CAP", &cfg.Limits.QueryRowCap); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_DATASET_MAX_ROWS", &cfg.Limits.MaxDatasetRows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_DATASET_MAX_COLUMNS", &cfg.Limits.MaxDatasetColumns); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TABLETALK_DATASET_MAX_UPLOAD_BYTES", &cfg.Limits.MaxUploadBytes); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_SESSION_TTL", &cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLETALK_SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_SESSION_MAX", &cfg.Session.MaxSessions); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_SESSION_SAMPLE_VALUES", &cfg.Session.SampleValues); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_CACHE_ENABLED", &cfg.Cache.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_CACHE_INCLUDE_LLM", &cfg.Cache.IncludeLLM); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_PGIMPORT_ENABLED", &cfg.PGImport.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_PGIMPORT_DSN", &cfg.PGImport.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLETALK_DEMO_ROWS", &cfg.Demo.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TABLETALK_DEMO_SEED", &cfg.Demo.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_DEMO_SEED_OBJECT_STORE", &cfg.Demo.SeedObjectStore); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "TABLETALK_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLETALK_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLETALK_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Provider.Kind {
	case ProviderNone:
	case ProviderOpenAI, ProviderAnthropic:
		if cfg.Provider.APIKey == "" {
			return Config{}, fmt.Errorf("TABLETALK_PROVIDER_API_KEY is required for provider %q", cfg.Provider.Kind)
		}
	default:
		return Config{}, fmt.Errorf("invalid TABLETALK_PROVIDER: %q", cfg.Provider.Kind)
	}
	if cfg.PGImport.Enabled && strings.TrimSpace(cfg.PGImport.DSN) == "" {
		return Config{}, fmt.Errorf("TABLETALK_PGIMPORT_DSN is required when postgres import is enabled")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tabletalk-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Provider: ProviderConfig{
			Kind:        ProviderNone,
			BaseURL:     "https://api.openai.com",
			Model:       "",
			Temperature: 0.1,
			MaxTokens:   1024,
			Timeout:     15 * time.Second,
		},
		Limits: LimitsConfig{
			MaxRowLimit:       1000,
			QueryRowCap:       10000,
			MaxDatasetRows:    100_000,
			MaxDatasetColumns: 64,
			MaxUploadBytes:    32 << 20,
		},
		Session: SessionConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
			MaxSessions:   100,
			SampleValues:  3,
		},
		Cache: CacheConfig{
			Enabled:    true,
			IncludeLLM: false,
			MaxEntries: 256,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "tabletalk",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		PGImport: PGImportConfig{
			Enabled: false,
			DSN:     "",
		},
		Demo: DemoConfig{
			Rows:            200,
			Seed:            42,
			SeedObjectStore: false,
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
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
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

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
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
