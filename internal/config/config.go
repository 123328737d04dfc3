// Package config provides configuration loading for grievanced.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then environment variables. See LoadWithFile for the precedence rules.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Config holds the complete grievanced configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Intake        IntakeConfig        `koanf:"intake"`
	OTP           OTPConfig           `koanf:"otp"`
	Identifier    IdentifierConfig    `koanf:"identifier"`
	Classifier    ClassifierConfig    `koanf:"classifier"`
	Delivery      DeliveryConfig      `koanf:"delivery"`
	Store         StoreConfig         `koanf:"store"`
	Session       SessionConfig       `koanf:"session"`
	Tasks         TasksConfig         `koanf:"tasks"`
	Sync          SyncConfig          `koanf:"sync"`
	NATS          NATSConfig          `koanf:"nats"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Legacy        LegacyConfig        `koanf:"legacy"`
	Taxonomy      TaxonomyConfig      `koanf:"taxonomy"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// CallbackToken guards the legacy sync-status callback. Unset disables
	// the endpoint.
	CallbackToken Secret `koanf:"callback_token"`
}

// Zero-category policies applied when the category loop is finalized empty.
const (
	ZeroCategoryAllow       = "allow"
	ZeroCategoryReclassify  = "reclassify"
	ZeroCategoryAcknowledge = "acknowledge"
)

// IntakeConfig controls the conversational intake flow.
type IntakeConfig struct {
	// MinDetailsChars completes the details stage automatically once reached.
	// Zero waits for an explicit "done".
	MinDetailsChars int `koanf:"min_details_chars"`
	MaxDetailsChars int `koanf:"max_details_chars"`
	// MaxCategoryEdits caps edit actions in the category loop. Zero is unbounded.
	MaxCategoryEdits   int           `koanf:"max_category_edits"`
	ZeroCategoryPolicy string        `koanf:"zero_category_policy"`
	ClassifyTimeout    time.Duration `koanf:"classify_timeout"`
}

// OTPConfig holds one-time code limits.
type OTPConfig struct {
	CodeLength      int           `koanf:"code_length"`
	TTL             time.Duration `koanf:"ttl"`
	MaxResends      int           `koanf:"max_resends"`
	MaxAttempts     int           `koanf:"max_attempts"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`
}

// IdentifierConfig controls grievance identifier generation.
type IdentifierConfig struct {
	Prefix       string `koanf:"prefix"`
	SuffixLength int    `koanf:"suffix_length"`
	MaxAttempts  int    `koanf:"max_attempts"`
	Timezone     string `koanf:"timezone"`
}

// ClassifierConfig selects and tunes the category classifier.
type ClassifierConfig struct {
	Provider  string        `koanf:"provider"` // keyword or llm
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    Secret        `koanf:"api_key"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	Timeout   time.Duration `koanf:"timeout"`
}

// DeliveryConfig selects the OTP delivery channel.
type DeliveryConfig struct {
	Provider   string        `koanf:"provider"` // log or webhook
	WebhookURL string        `koanf:"webhook_url"`
	Token      Secret        `koanf:"token"`
	RateLimit  float64       `koanf:"rate_limit"`
	Burst      int           `koanf:"burst"`
	Timeout    time.Duration `koanf:"timeout"`
}

// StoreConfig selects the grievance persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite or postgres
	DSN    Secret `koanf:"dsn"`
}

// SessionConfig selects the conversation session backend.
type SessionConfig struct {
	Backend       string        `koanf:"backend"` // memory or redis
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword Secret        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}

// TasksConfig bounds background work.
type TasksConfig struct {
	MaxConcurrent int `koanf:"max_concurrent"`
}

// SyncConfig controls hand-off of submitted records to the sync layer.
// A failed publish is retried PublishAttempts times with exponential
// backoff; records still pending are republished every SweepInterval.
type SyncConfig struct {
	PublishAttempts   int           `koanf:"publish_attempts"`
	PublishBackoff    time.Duration `koanf:"publish_backoff"`
	PublishMaxBackoff time.Duration `koanf:"publish_max_backoff"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	SweepBatch        int           `koanf:"sweep_batch"`
}

// NATSConfig holds the submission event stream settings.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	Stream        string `koanf:"stream"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TemporalConfig holds the durable legacy sync settings.
type TemporalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
	RunWorker bool   `koanf:"run_worker"`
}

// LegacyConfig describes the legacy case-management API.
type LegacyConfig struct {
	BaseURL      string        `koanf:"base_url"`
	TokenURL     string        `koanf:"token_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret Secret        `koanf:"client_secret"`
	Scope        string        `koanf:"scope"`
	Timeout      time.Duration `koanf:"timeout"`
}

// TaxonomyConfig points at the category and gazetteer file.
type TaxonomyConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// LoggingConfig is the subset of logging settings exposed through config
// files and the environment. The logging package owns the full Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

var prefixPattern = regexp.MustCompile(`^[A-Z]{1,8}$`)

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be 1-65535, got %d", c.Server.Port))
	}

	switch c.Intake.ZeroCategoryPolicy {
	case ZeroCategoryAllow, ZeroCategoryReclassify, ZeroCategoryAcknowledge:
	default:
		errs = append(errs, fmt.Errorf("intake.zero_category_policy must be allow, reclassify or acknowledge, got %q", c.Intake.ZeroCategoryPolicy))
	}
	if c.Intake.MinDetailsChars < 0 || c.Intake.MaxCategoryEdits < 0 {
		errs = append(errs, errors.New("intake limits cannot be negative"))
	}
	if c.Intake.MaxDetailsChars > 0 && c.Intake.MinDetailsChars > c.Intake.MaxDetailsChars {
		errs = append(errs, errors.New("intake.min_details_chars exceeds intake.max_details_chars"))
	}

	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		errs = append(errs, fmt.Errorf("otp.code_length must be 4-10, got %d", c.OTP.CodeLength))
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxResends < 0 || c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("otp limits must be positive"))
	}

	if !prefixPattern.MatchString(c.Identifier.Prefix) {
		errs = append(errs, fmt.Errorf("identifier.prefix must be 1-8 uppercase letters, got %q", c.Identifier.Prefix))
	}
	if c.Identifier.SuffixLength < 4 || c.Identifier.SuffixLength > 16 {
		errs = append(errs, fmt.Errorf("identifier.suffix_length must be 4-16, got %d", c.Identifier.SuffixLength))
	}
	if c.Identifier.MaxAttempts <= 0 {
		errs = append(errs, errors.New("identifier.max_attempts must be positive"))
	}
	if _, err := time.LoadLocation(c.Identifier.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("identifier.timezone: %w", err))
	}

	switch c.Classifier.Provider {
	case "keyword":
	case "llm":
		if c.Classifier.Model == "" {
			errs = append(errs, errors.New("classifier.model is required for the llm provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.provider must be keyword or llm, got %q", c.Classifier.Provider))
	}

	switch c.Delivery.Provider {
	case "log":
	case "webhook":
		if c.Delivery.WebhookURL == "" {
			errs = append(errs, errors.New("delivery.webhook_url is required for the webhook provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("delivery.provider must be log or webhook, got %q", c.Delivery.Provider))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if !c.Store.DSN.IsSet() {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver))
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend must be memory or redis, got %q", c.Session.Backend))
	}

	if c.Tasks.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("tasks.max_concurrent must be positive"))
	}
	if c.Sync.PublishAttempts <= 0 {
		errs = append(errs, errors.New("sync.publish_attempts must be positive"))
	}
	if c.Sync.PublishBackoff <= 0 || c.Sync.PublishMaxBackoff < c.Sync.PublishBackoff {
		errs = append(errs, errors.New("sync.publish_backoff must be positive and not above sync.publish_max_backoff"))
	}
	if c.Sync.SweepInterval <= 0 || c.Sync.SweepBatch <= 0 {
		errs = append(errs, errors.New("sync.sweep_interval and sync.sweep_batch must be positive"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, errors.New("temporal.host_port is required when temporal is enabled"))
	}
	if c.Temporal.Enabled && c.Legacy.BaseURL == "" {
		errs = append(errs, errors.New("legacy.base_url is required when temporal sync is enabled"))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
