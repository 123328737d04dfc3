package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	appName           = "grievanced"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, OTP_MAX_RESENDS, etc.)
//  2. YAML config file (~/.config/grievanced/config.yaml)
//  3. Hardcoded defaults
//
// A missing file is not an error. An existing file must live in
// ~/.config/grievanced/ or /etc/grievanced/, have 0600 or 0400 permissions
// and be at most 1MB.
//
// Environment variables are split on the first underscore only, so the
// section name comes first and the remainder is the field:
//
//	SERVER_HTTP_PORT            -> server.http_port
//	INTAKE_ZERO_CATEGORY_POLICY -> intake.zero_category_policy
//	STORE_DSN                   -> store.dsn
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", appName, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration holding only defaults. It is valid as is
// and runs fully in memory.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates through the open
// descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/grievanced with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", appName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path resolves inside an allowed directory.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", appName),
		filepath.Join("/etc", appName),
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/%s/ or /etc/%s/", appName, appName)
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Intake
	if cfg.Intake.MaxDetailsChars == 0 {
		cfg.Intake.MaxDetailsChars = 4000
	}
	if cfg.Intake.ZeroCategoryPolicy == "" {
		cfg.Intake.ZeroCategoryPolicy = ZeroCategoryAllow
	}
	if cfg.Intake.ClassifyTimeout == 0 {
		cfg.Intake.ClassifyTimeout = 5 * time.Second
	}

	// OTP
	if cfg.OTP.CodeLength == 0 {
		cfg.OTP.CodeLength = 6
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = 5 * time.Minute
	}
	if cfg.OTP.MaxResends == 0 {
		cfg.OTP.MaxResends = 3
	}
	if cfg.OTP.MaxAttempts == 0 {
		cfg.OTP.MaxAttempts = 5
	}
	if cfg.OTP.DeliveryTimeout == 0 {
		cfg.OTP.DeliveryTimeout = 10 * time.Second
	}

	// Identifier
	if cfg.Identifier.Prefix == "" {
		cfg.Identifier.Prefix = "GR"
	}
	if cfg.Identifier.SuffixLength == 0 {
		cfg.Identifier.SuffixLength = 6
	}
	if cfg.Identifier.MaxAttempts == 0 {
		cfg.Identifier.MaxAttempts = 5
	}
	if cfg.Identifier.Timezone == "" {
		cfg.Identifier.Timezone = "UTC"
	}

	// Classifier
	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = "keyword"
	}
	if cfg.Classifier.RateLimit == 0 {
		cfg.Classifier.RateLimit = 2
	}
	if cfg.Classifier.Burst == 0 {
		cfg.Classifier.Burst = 4
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 4 * time.Second
	}

	// Delivery
	if cfg.Delivery.Provider == "" {
		cfg.Delivery.Provider = "log"
	}
	if cfg.Delivery.RateLimit == 0 {
		cfg.Delivery.RateLimit = 5
	}
	if cfg.Delivery.Burst == 0 {
		cfg.Delivery.Burst = 10
	}
	if cfg.Delivery.Timeout == 0 {
		cfg.Delivery.Timeout = 10 * time.Second
	}

	// Store and session
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Tasks.MaxConcurrent == 0 {
		cfg.Tasks.MaxConcurrent = 32
	}

	// Sync
	if cfg.Sync.PublishAttempts == 0 {
		cfg.Sync.PublishAttempts = 5
	}
	if cfg.Sync.PublishBackoff == 0 {
		cfg.Sync.PublishBackoff = time.Second
	}
	if cfg.Sync.PublishMaxBackoff == 0 {
		cfg.Sync.PublishMaxBackoff = 30 * time.Second
	}
	if cfg.Sync.SweepInterval == 0 {
		cfg.Sync.SweepInterval = time.Minute
	}
	if cfg.Sync.SweepBatch == 0 {
		cfg.Sync.SweepBatch = 100
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "GRIEVANCES"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "grievances.submitted"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "grievance-legacy-sync"
	}
	if cfg.Legacy.Timeout == 0 {
		cfg.Legacy.Timeout = 15 * time.Second
	}

	// Observability
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = appName
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
