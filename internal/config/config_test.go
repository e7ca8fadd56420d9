package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "smarttv"},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{AccountSID: "AC123", AuthToken: "tok"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.Driver != "pgx" || c.DB.SSLMode != "disable" {
		t.Fatalf("unexpected db defaults: %+v", c.DB)
	}
	if c.Sync.Interval != 3*time.Minute {
		t.Fatalf("expected 3m interval, got %s", c.Sync.Interval)
	}
	if c.Sync.EmptyRoomTimeout != 5*time.Minute || c.Sync.SingleParticipantTimeout != 10*time.Minute || c.Sync.MinCallDuration != 5*time.Minute {
		t.Fatalf("unexpected thresholds: %+v", c.Sync)
	}
	if c.Twilio.VideoBaseURL != "https://video.twilio.com" || c.Twilio.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected twilio defaults: %+v", c.Twilio)
	}
	if c.RedisEnabled() {
		t.Fatalf("redis must be disabled without REDIS_HOST")
	}
}

func TestValidate_SQLiteRejectedInProduction(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.DB = DBConfig{Driver: "sqlite3"}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite3") {
		t.Fatalf("expected sqlite3 production error, got %v", err)
	}
}

func TestValidate_RequiresTwilioCredentials(t *testing.T) {
	c := validLocal()
	c.Twilio = TwilioConfig{AccountSID: "AC123"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing twilio credentials error")
	}
}

func TestTwilioCredentials_PrefersAPIKey(t *testing.T) {
	c := validLocal()
	c.Twilio.APIKey = "SK1"
	c.Twilio.APISecret = "s"
	user, pass := c.TwilioCredentials()
	if user != "SK1" || pass != "s" {
		t.Fatalf("expected api key credentials, got %q %q", user, pass)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TWILIO_API_KEY", "SK1")
	t.Setenv("TWILIO_API_SECRET", "sec")
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("REDIS_HOST", "redis")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Sync.Interval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", c.Sync.Interval)
	}
	if c.RedisAddr() != "redis:6379" {
		t.Fatalf("expected default redis port, got %s", c.RedisAddr())
	}
	if !strings.HasPrefix(c.DSN(), "file:/tmp/x.db") {
		t.Fatalf("unexpected dsn: %s", c.DSN())
	}
}

func TestLoad_ReportsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SYNC_INTERVAL", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SYNC_INTERVAL") {
		t.Fatalf("expected SYNC_INTERVAL parse error, got %v", err)
	}
}
