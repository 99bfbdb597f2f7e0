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
	Database      DatabaseConfig
	AI            AIConfig
	Context       ContextConfig
	Guard         GuardConfig
	Schema        SchemaConfig
	ObjectStore   ObjectStoreConfig
	Export        ExportConfig
	Ops           OpsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	RowLimit        int
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ContextConfig bounds how much of the conversation is replayed into each prompt.
// PreviewRows of zero replays questions and SQL without result previews.
type ContextConfig struct {
	HistoryWindow int
	PreviewRows   int
}

type GuardConfig struct {
	ReadOnly          bool
	AllowedStatements []string
}

type SchemaConfig struct {
	File      string
	ObjectKey string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// Enabled reports whether an object store endpoint was configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

type ExportConfig struct {
	Dir string
}

type OpsConfig struct {
	Address         string
	ShutdownTimeout time.Duration
	// APIKeys is a comma-separated name:key list; empty leaves the listener open.
	APIKeys string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

var supportedDrivers = map[string]struct{}{
	"mysql":    {},
	"postgres": {},
	"duckdb":   {},
	"sqlite":   {},
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLASSIST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLASSIST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SQLASSIST_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_DB_DRIVER", &cfg.Database.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_DB_DSN", &cfg.Database.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_DB_ROW_LIMIT", &cfg.Database.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyNonEmptyString(lookup, "SQLASSIST_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SQLASSIST_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_CONTEXT_HISTORY_WINDOW", &cfg.Context.HistoryWindow); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLASSIST_CONTEXT_PREVIEW_ROWS", &cfg.Context.PreviewRows); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_GUARD_READ_ONLY", &cfg.Guard.ReadOnly); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "SQLASSIST_GUARD_ALLOWED_STATEMENTS", &cfg.Guard.AllowedStatements); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SCHEMA_FILE", &cfg.Schema.File); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_SCHEMA_OBJECT_KEY", &cfg.Schema.ObjectKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_EXPORT_DIR", &cfg.Export.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OPS_ADDR", &cfg.Ops.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLASSIST_OPS_SHUTDOWN_TIMEOUT", &cfg.Ops.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLASSIST_OPS_API_KEYS", &cfg.Ops.APIKeys); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLASSIST_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SQLASSIST_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints after defaults and overrides are applied.
func (c Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if _, ok := supportedDrivers[c.Database.Driver]; !ok {
		return fmt.Errorf("unsupported SQLASSIST_DB_DRIVER: %q", c.Database.Driver)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("SQLASSIST_DB_QUERY_TIMEOUT must be > 0")
	}
	if c.Database.RowLimit < 0 {
		return fmt.Errorf("SQLASSIST_DB_ROW_LIMIT must be >= 0")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("SQLASSIST_AI_TEMPERATURE must be within [0, 2]")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("SQLASSIST_AI_MAX_TOKENS must be > 0")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("SQLASSIST_AI_TIMEOUT must be > 0")
	}
	if c.Context.HistoryWindow < 1 {
		return fmt.Errorf("SQLASSIST_CONTEXT_HISTORY_WINDOW must be >= 1")
	}
	if c.Context.PreviewRows < 0 {
		return fmt.Errorf("SQLASSIST_CONTEXT_PREVIEW_ROWS must be >= 0")
	}
	if c.Guard.ReadOnly && len(c.Guard.AllowedStatements) == 0 {
		return fmt.Errorf("SQLASSIST_GUARD_ALLOWED_STATEMENTS must not be empty in read-only mode")
	}
	if c.Schema.ObjectKey != "" && !c.ObjectStore.Enabled() {
		return fmt.Errorf("SQLASSIST_SCHEMA_OBJECT_KEY requires SQLASSIST_OBJECTSTORE_ENDPOINT")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlassist"},
		Database: DatabaseConfig{
			Driver:          "mysql",
			DSN:             "root:@tcp(localhost:3306)/employee_data",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
			RowLimit:        0,
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   200,
			Timeout:     30 * time.Second,
		},
		Context: ContextConfig{
			HistoryWindow: 5,
			PreviewRows:   3,
		},
		Guard: GuardConfig{
			ReadOnly:          true,
			AllowedStatements: []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"},
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			Bucket:           "sqlassist",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Export: ExportConfig{
			Dir: ".",
		},
		Ops: OpsConfig{
			Address:         "",
			ShutdownTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelWarn,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileDev:
		cfg.Observability.LogLevel = slog.LevelInfo
	case ProfileTest:
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = "file::memory:?cache=shared"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogJSON = true
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

// applyNonEmptyString is applyString for overrides that must not blank out
// a value taken from a fallback key.
func applyNonEmptyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList parses a comma separated list, upper-casing each item.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	*dst = items
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
