package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "matchcall"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "APP_ENV is required") || !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("expected all errors joined, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "matchcall"
	c.Auth.JWTAudience = "matchcall-web"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Call.RingTimeout != 30*time.Second {
		t.Fatalf("expected 30s ring timeout, got %v", c.Call.RingTimeout)
	}
	if len(c.Call.STUNURLs) != 1 || c.Call.STUNURLs[0] != DefaultSTUNURL {
		t.Fatalf("expected default stun url, got %v", c.Call.STUNURLs)
	}
	if c.Signal.SubscribeTimeout != 5*time.Second {
		t.Fatalf("expected 5s subscribe timeout, got %v", c.Signal.SubscribeTimeout)
	}
	if c.Profile.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m profile cache ttl, got %v", c.Profile.CacheTTL)
	}
}

func TestValidate_RejectsNonSTUNURL(t *testing.T) {
	c := validLocal()
	c.Call.STUNURLs = []string{"turn:relay.example.com:3478"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-stun url")
	}
}

func TestLoad_ParsesCallSettings(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "matchcall")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_RING_TIMEOUT", "45s")
	t.Setenv("CALL_STUN_URLS", "stun:a.example.com:3478, stun:b.example.com:3478")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Call.RingTimeout != 45*time.Second {
		t.Fatalf("expected 45s, got %v", c.Call.RingTimeout)
	}
	if len(c.Call.STUNURLs) != 2 || c.Call.STUNURLs[1] != "stun:b.example.com:3478" {
		t.Fatalf("unexpected stun urls: %v", c.Call.STUNURLs)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "matchcall")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_RING_TIMEOUT", "thirty")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAgentValidate_DerivesRealtimeURL(t *testing.T) {
	c := AgentConfig{APIURL: "https://api.example.com"}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.RealtimeURL != "wss://api.example.com/v1/realtime" {
		t.Fatalf("unexpected realtime url %q", c.RealtimeURL)
	}
	if c.Env != "local" || c.Call.RingTimeout != 30*time.Second || c.Call.STUNURLs[0] != DefaultSTUNURL {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestLoadAgent_RequiresAPIURL(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("AGENT_API_URL", "")
	if _, err := LoadAgent(); err == nil {
		t.Fatalf("expected missing api url to fail")
	}

	t.Setenv("AGENT_API_URL", "http://localhost:8080/")
	c, err := LoadAgent()
	if err != nil {
		t.Fatalf("load agent: %v", err)
	}
	if c.APIURL != "http://localhost:8080" || c.RealtimeURL != "ws://localhost:8080/v1/realtime" {
		t.Fatalf("unexpected urls: %+v", c)
	}
}
