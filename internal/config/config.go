// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// CloudAPIURL is the base URL of the cloud control plane (directory, role
	// assignments, policy assignments, resource containers).
	CloudAPIURL string `mapstructure:"CLOUD_API_URL"`
	// CloudAPIToken authenticates calls to the cloud control plane.
	CloudAPIToken string `mapstructure:"CLOUD_API_TOKEN"`
	// CloudLocation is the region lab resources are created in (e.g. fsn1).
	CloudLocation string `mapstructure:"CLOUD_LOCATION"`
	// DirectoryDomain is the principal-name suffix for lab identities (e.g. labs.example.com).
	DirectoryDomain string `mapstructure:"DIRECTORY_DOMAIN"`
	// LabRoleID is the role-definition ID granted to portal identities. Missing
	// value is a fatal configuration error on first portal-access provisioning.
	LabRoleID string `mapstructure:"LAB_ROLE_ID"`
	// GuardrailInitiativeID is the policy-bundle (initiative) ID attached to lab
	// containers. Same fail-fast semantics as LabRoleID.
	GuardrailInitiativeID string `mapstructure:"GUARDRAIL_INITIATIVE_ID"`

	// HCloudToken is the Hetzner Cloud API token for the default compute driver.
	HCloudToken string `mapstructure:"HCLOUD_TOKEN"`

	// GatewayURL is the remote-desktop broker base URL (e.g. http://gw:8080/guacamole).
	GatewayURL string `mapstructure:"GATEWAY_URL"`
	// GatewayUsername is the broker admin user.
	GatewayUsername string `mapstructure:"GATEWAY_USERNAME"`
	// GatewayPassword is the broker admin password.
	GatewayPassword string `mapstructure:"GATEWAY_PASSWORD"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used to mint console tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; validates access and console tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "labs-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "labs-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// ConsoleTokenTTL is the lifetime of minted console tokens (e.g. "4h").
	ConsoleTokenTTL string `mapstructure:"CONSOLE_TOKEN_TTL"`

	// SweepTokenHash is the bcrypt hash of the bearer secret the scheduler presents
	// to POST /internal/sweep. Empty disables the endpoint.
	SweepTokenHash string `mapstructure:"SWEEP_TOKEN_HASH"`

	// DefaultMaxLaunches caps launches per purchase (default 10).
	DefaultMaxLaunches int `mapstructure:"DEFAULT_MAX_LAUNCHES"`
	// DefaultSessionHours is the hard session duration limit in hours (default 4).
	DefaultSessionHours int `mapstructure:"DEFAULT_SESSION_HOURS"`
	// DefaultAccessDays is the entitlement window in days from purchase (default 180).
	DefaultAccessDays int `mapstructure:"DEFAULT_ACCESS_DAYS"`
	// LicenseReclaimOnUnassign controls whether removing a member's lab assignment
	// returns the seat to the organization pool. Off by default: seats are consumed
	// permanently unless an operator opts in.
	LicenseReclaimOnUnassign bool `mapstructure:"LICENSE_RECLAIM_ON_UNASSIGN"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, the server emits session
	// lifecycle events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for lifecycle events (default lab-lifecycle).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the lifecycle worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the lifecycle worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// GuardrailAllowedSizes is a comma-separated allow list of VM sizes; empty allows all.
	GuardrailAllowedSizes string `mapstructure:"GUARDRAIL_ALLOWED_SIZES"`
	// GuardrailAllowedLocations is a comma-separated allow list of locations; empty allows all.
	GuardrailAllowedLocations string `mapstructure:"GUARDRAIL_ALLOWED_LOCATIONS"`
	// GuardrailRequiredTags is a comma-separated list of tag keys every lab VM must carry.
	GuardrailRequiredTags string `mapstructure:"GUARDRAIL_REQUIRED_TAGS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CLOUD_API_URL", "")
	v.SetDefault("CLOUD_API_TOKEN", "")
	v.SetDefault("CLOUD_LOCATION", "fsn1")
	v.SetDefault("DIRECTORY_DOMAIN", "")
	v.SetDefault("LAB_ROLE_ID", "")
	v.SetDefault("GUARDRAIL_INITIATIVE_ID", "")
	v.SetDefault("HCLOUD_TOKEN", "")
	v.SetDefault("GATEWAY_URL", "")
	v.SetDefault("GATEWAY_USERNAME", "")
	v.SetDefault("GATEWAY_PASSWORD", "")
	v.SetDefault("JWT_ISSUER", "labs-auth")
	v.SetDefault("JWT_AUDIENCE", "labs-api")
	v.SetDefault("CONSOLE_TOKEN_TTL", "4h")
	v.SetDefault("SWEEP_TOKEN_HASH", "")
	v.SetDefault("DEFAULT_MAX_LAUNCHES", 10)
	v.SetDefault("DEFAULT_SESSION_HOURS", 4)
	v.SetDefault("DEFAULT_ACCESS_DAYS", 180)
	v.SetDefault("LICENSE_RECLAIM_ON_UNASSIGN", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "lab-lifecycle")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "lab-lifecycle-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("GUARDRAIL_ALLOWED_SIZES", "")
	v.SetDefault("GUARDRAIL_ALLOWED_LOCATIONS", "")
	v.SetDefault("GUARDRAIL_REQUIRED_TAGS", "lab")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DefaultMaxLaunches <= 0 {
		return nil, errors.New("config: DEFAULT_MAX_LAUNCHES must be positive")
	}
	if cfg.DefaultSessionHours <= 0 {
		return nil, errors.New("config: DEFAULT_SESSION_HOURS must be positive")
	}
	if cfg.DefaultAccessDays <= 0 {
		return nil, errors.New("config: DEFAULT_ACCESS_DAYS must be positive")
	}

	return &cfg, nil
}

// SessionDuration returns the hard session limit as a time.Duration.
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.DefaultSessionHours) * time.Hour
}

// ConsoleTTL parses ConsoleTokenTTL as a time.Duration. Returns 4h if unset or invalid.
func (c *Config) ConsoleTTL() time.Duration {
	d, err := time.ParseDuration(c.ConsoleTokenTTL)
	if err != nil || d <= 0 {
		return 4 * time.Hour
	}
	return d
}

// splitList parses a comma-separated config value into trimmed, non-empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// GuardrailConstraintLists returns the allow lists and required tag keys for
// the preflight guardrail evaluation.
func (c *Config) GuardrailConstraintLists() (sizes, locations, tags []string) {
	return splitList(c.GuardrailAllowedSizes), splitList(c.GuardrailAllowedLocations), splitList(c.GuardrailRequiredTags)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}
