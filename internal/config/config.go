package config

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded from environment
// variables (PRAXISBILL_* prefix) with an optional praxisbill.yaml file.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Clearing  ClearingConfig  `mapstructure:"clearing"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Env            string        `mapstructure:"env"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BodyLimit      string        `mapstructure:"body_limit"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
	JWKSURL    string `mapstructure:"jwks_url"`
	SigningKey string `mapstructure:"signing_key"` // HS256 dev-mode key
}

// ClearingConfig holds the connection settings for the insurer clearing
// proxy (upload/download message exchange).
type ClearingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	SenderGLN string        `mapstructure:"sender_gln"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReconcileConfig controls the background reconciliation engine.
//
// StatusDwell and DwellLawTypes implement the dwell rule: for law types
// whose insurers never send an electronic reply (supplementary insurance in
// practice), a submission still sitting in "transmitted" after StatusDwell
// is assumed to have reached the insurer and is moved to "delivered".
type ReconcileConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	StatusDwell   time.Duration `mapstructure:"status_dwell"`
	DwellLawTypes []string      `mapstructure:"dwell_law_types"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// BillingConfig carries the pricing and document-building constants.
type BillingConfig struct {
	CostNeutralityFactor float64 `mapstructure:"cost_neutrality_factor"`
	DefaultCanton        string  `mapstructure:"default_canton"`
	FallbackGLN          string  `mapstructure:"fallback_gln"`
	FallbackIBAN         string  `mapstructure:"fallback_iban"`
	SchemaVersion        string  `mapstructure:"schema_version"`
}

type PaymentsConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

var glnPattern = regexp.MustCompile(`^\d{13}$`)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("praxisbill")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PRAXISBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.body_limit", "1M")
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 200)
	v.SetDefault("server.cors_origins", "http://localhost:3000")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.signing_key", "")

	v.SetDefault("clearing.base_url", "")
	v.SetDefault("clearing.username", "")
	v.SetDefault("clearing.password", "")
	v.SetDefault("clearing.sender_gln", "")
	v.SetDefault("clearing.timeout", "30s")

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", "15m")
	v.SetDefault("reconcile.status_dwell", "240h")
	v.SetDefault("reconcile.dwell_law_types", "VVG")
	v.SetDefault("reconcile.batch_size", 50)

	v.SetDefault("billing.cost_neutrality_factor", 1.0)
	v.SetDefault("billing.default_canton", "ZH")
	// Last-resort placeholder GLN for documents where no party carries one.
	v.SetDefault("billing.fallback_gln", "2099999999999")
	// SIX sample QR-IBAN; replaced per deployment with the practice account.
	v.SetDefault("billing.fallback_iban", "CH4431999123000889012")
	v.SetDefault("billing.schema_version", "4.5")

	v.SetDefault("payments.webhook_secret", "")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "praxisbill-server")

	// Bind env vars without defaults explicitly so Unmarshal picks them up
	v.BindEnv("database.url")

	// Try reading the config file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Server.CORSOrigins == nil {
		origins := v.GetString("server.cors_origins")
		if origins != "" {
			cfg.Server.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.Reconcile.DwellLawTypes == nil {
		lawTypes := v.GetString("reconcile.dwell_law_types")
		if lawTypes != "" {
			cfg.Reconcile.DwellLawTypes = strings.Split(lawTypes, ",")
		}
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("PRAXISBILL_DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (server.env=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set PRAXISBILL_SERVER_ENV=production and configure auth.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks that the configuration is safe to run. In production,
// real JWT authentication must be configured and the clearing credentials
// must be present when the reconciliation engine is enabled.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Auth.Enabled {
		if c.Auth.JWKSURL == "" && c.Auth.SigningKey == "" {
			return fmt.Errorf(
				"auth requires either PRAXISBILL_AUTH_JWKS_URL or PRAXISBILL_AUTH_SIGNING_KEY in production. " +
					"Refusing to start without authentication configuration")
		}
	}
	if c.IsProduction() && !c.Auth.Enabled {
		return fmt.Errorf("auth.enabled must be true in production")
	}

	if c.Reconcile.Enabled {
		if c.Clearing.BaseURL == "" {
			return fmt.Errorf("PRAXISBILL_CLEARING_BASE_URL is required when reconcile is enabled")
		}
		if c.IsProduction() && (c.Clearing.Username == "" || c.Clearing.Password == "") {
			return fmt.Errorf("clearing credentials are required in production when reconcile is enabled")
		}
		if c.Reconcile.Interval <= 0 {
			return fmt.Errorf("reconcile.interval must be positive, got %v", c.Reconcile.Interval)
		}
		if c.Reconcile.StatusDwell <= 0 {
			return fmt.Errorf("reconcile.status_dwell must be positive, got %v", c.Reconcile.StatusDwell)
		}
		if c.Reconcile.BatchSize <= 0 {
			return fmt.Errorf("reconcile.batch_size must be positive, got %d", c.Reconcile.BatchSize)
		}
	}

	if c.Billing.CostNeutralityFactor <= 0 {
		return fmt.Errorf("billing.cost_neutrality_factor must be positive, got %f", c.Billing.CostNeutralityFactor)
	}
	if c.Billing.DefaultCanton == "" {
		return fmt.Errorf("billing.default_canton must be set")
	}
	if !glnPattern.MatchString(c.Billing.FallbackGLN) {
		return fmt.Errorf("billing.fallback_gln must be exactly 13 digits, got %q", c.Billing.FallbackGLN)
	}
	if len(c.Billing.FallbackIBAN) != 21 || !strings.HasPrefix(c.Billing.FallbackIBAN, "CH") {
		return fmt.Errorf("billing.fallback_iban must be a CH IBAN (21 chars), got %q", c.Billing.FallbackIBAN)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.Server.TLSEnabled {
		if c.Server.TLSCertFile == "" {
			return fmt.Errorf("server.tls_cert_file is required when TLS is enabled")
		}
		if c.Server.TLSKeyFile == "" {
			return fmt.Errorf("server.tls_key_file is required when TLS is enabled")
		}
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
