package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "connector"},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		LiveKit: LiveKitConfig{
			URL:       "wss://example.livekit.cloud",
			APIKey:    "key",
			APISecret: "secret",
			SIPURI:    "sip:abc.sip.livekit.cloud",
			AgentName: "navi-inbound-agent",
		},
		Connector: ConnectorConfig{
			CarrierTrunkName:     "LiveKit Trunk",
			RetryMaxAttempts:     3,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     5 * time.Second,
			ConnectTimeout:       2 * time.Minute,
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET", "LIVEKIT_URL", "LIVEKIT_SIP_URI"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Connector.LockTTL != c.Connector.ConnectTimeout+30*time.Second {
		t.Fatalf("expected lock ttl derived from connect timeout, got %s", c.Connector.LockTTL)
	}
	if got := c.PostgresURL(); got != "postgres://postgres:x@localhost:5432/connector?sslmode=disable" {
		t.Fatalf("unexpected postgres url %q", got)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected no redis addr when host unset")
	}
}

func TestValidate_RejectsNonSIPURI(t *testing.T) {
	c := validConfig("local")
	c.LiveKit.SIPURI = "https://not-sip"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "sip:") {
		t.Fatalf("expected sip uri error, got %v", err)
	}
}

func TestLoad_ParsesEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "n")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("LIVEKIT_URL", "wss://lk")
	t.Setenv("LIVEKIT_API_KEY", "k")
	t.Setenv("LIVEKIT_API_SECRET", "s")
	t.Setenv("LIVEKIT_SIP_URI", "sip:lk.example")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CONNECTOR_RETRY_MAX_ATTEMPTS", "5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 8080 || c.DB.Port != 5432 {
		t.Fatalf("expected default ports, got %d %d", c.App.Port, c.DB.Port)
	}
	if c.Connector.RetryMaxAttempts != 5 {
		t.Fatalf("expected retry attempts from env, got %d", c.Connector.RetryMaxAttempts)
	}
	if c.Connector.CarrierTrunkName != "LiveKit Trunk" || c.Connector.RoomPrefix != "call-" {
		t.Fatalf("unexpected connector defaults: %+v", c.Connector)
	}
	if c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}
