package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration required by the API process and the CLI.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LiveKit   LiveKitConfig
	Connector ConnectorConfig
	NATS      NATSConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`
}

// RedisConfig is optional. When Host is empty, locks are process-local.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTIssuer      string        `env:"JWT_ISSUER"`
	JWTAudience    string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TTL"`
}

type LiveKitConfig struct {
	URL       string `env:"LIVEKIT_URL"`
	APIKey    string `env:"LIVEKIT_API_KEY"`
	APISecret string `env:"LIVEKIT_API_SECRET"`

	// SIPURI is the LiveKit SIP endpoint the carrier trunk originates to.
	SIPURI    string `env:"LIVEKIT_SIP_URI"`
	AgentName string `env:"LIVEKIT_AGENT_NAME" envDefault:"navi-inbound-agent"`
}

type ConnectorConfig struct {
	CarrierTrunkName  string `env:"CONNECTOR_CARRIER_TRUNK_NAME" envDefault:"LiveKit Trunk"`
	TrunkDomainPrefix string `env:"CONNECTOR_TRUNK_DOMAIN_PREFIX" envDefault:"livekit-trunk-"`
	InboundTrunkName  string `env:"CONNECTOR_INBOUND_TRUNK_NAME" envDefault:"Inbound LiveKit Trunk"`
	OutboundTrunkName string `env:"CONNECTOR_OUTBOUND_TRUNK_NAME" envDefault:"Livekit Outbound Trunk"`
	DispatchRuleName  string `env:"CONNECTOR_DISPATCH_RULE_NAME" envDefault:"Inbound Dispatch Rule"`
	RoomPrefix        string `env:"CONNECTOR_ROOM_PREFIX" envDefault:"call-"`

	RetryMaxAttempts     int           `env:"CONNECTOR_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"CONNECTOR_RETRY_INITIAL_INTERVAL" envDefault:"1s"`
	RetryMaxInterval     time.Duration `env:"CONNECTOR_RETRY_MAX_INTERVAL" envDefault:"5s"`
	ConnectTimeout       time.Duration `env:"CONNECTOR_CONNECT_TIMEOUT" envDefault:"2m"`
	LockTTL              time.Duration `env:"CONNECTOR_LOCK_TTL"`
}

// NATSConfig is optional. When URL is empty, lifecycle events are not published.
type NATSConfig struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT" envDefault:"connector.events"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.App.Env = strings.TrimSpace(c.App.Env)
	c.DB.SSLMode = strings.TrimSpace(c.DB.SSLMode)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	errs = append(errs, c.LiveKit.validate()...)
	errs = append(errs, c.Connector.validate()...)

	return joinErrors(errs)
}

func (l LiveKitConfig) validate() []error {
	var errs []error
	if l.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if l.APIKey == "" || l.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required"))
	}
	if l.SIPURI == "" {
		errs = append(errs, errors.New("LIVEKIT_SIP_URI is required"))
	} else if !strings.HasPrefix(strings.ToLower(l.SIPURI), "sip:") {
		errs = append(errs, fmt.Errorf("LIVEKIT_SIP_URI must start with sip:, got %q", l.SIPURI))
	}
	if strings.TrimSpace(l.AgentName) == "" {
		errs = append(errs, errors.New("LIVEKIT_AGENT_NAME must not be empty"))
	}
	return errs
}

func (c *ConnectorConfig) validate() []error {
	var errs []error
	if strings.TrimSpace(c.CarrierTrunkName) == "" {
		errs = append(errs, errors.New("CONNECTOR_CARRIER_TRUNK_NAME must not be empty"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("CONNECTOR_RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts))
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		errs = append(errs, errors.New("CONNECTOR_RETRY_MAX_INTERVAL must be >= CONNECTOR_RETRY_INITIAL_INTERVAL > 0"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("CONNECTOR_CONNECT_TIMEOUT must be > 0"))
	}
	if c.LockTTL <= 0 {
		// A lock must outlive the longest connect it protects.
		c.LockTTL = c.ConnectTimeout + 30*time.Second
	}
	if c.LockTTL < c.ConnectTimeout {
		errs = append(errs, errors.New("CONNECTOR_LOCK_TTL must be >= CONNECTOR_CONNECT_TIMEOUT"))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the URL form of the DSN, used by the migration runner.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisAddr returns "" when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
