package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns defaults with a usable secret.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
  namespace: "lab"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
bridge:
  default_timeout: 4s
  poll_interval: 250ms
  strategy: poll
  clear_on_timeout: false
claim:
  confirm_method: "identify"
  timeout: 20s
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Site.Namespace != "lab" {
		t.Errorf("Site.Namespace = %q, want %q", cfg.Site.Namespace, "lab")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.Bridge.DefaultTimeout != 4*time.Second {
		t.Errorf("Bridge.DefaultTimeout = %v, want 4s", cfg.Bridge.DefaultTimeout)
	}
	if cfg.Bridge.PollInterval != 250*time.Millisecond {
		t.Errorf("Bridge.PollInterval = %v, want 250ms", cfg.Bridge.PollInterval)
	}
	if cfg.Bridge.Strategy != StrategyPoll {
		t.Errorf("Bridge.Strategy = %q, want %q", cfg.Bridge.Strategy, StrategyPoll)
	}
	if cfg.Bridge.ClearOnTimeout {
		t.Error("Bridge.ClearOnTimeout = true, want false")
	}
	// Untouched keys keep their defaults.
	if cfg.Bridge.FetchWindow != 150*time.Millisecond {
		t.Errorf("Bridge.FetchWindow = %v, want default 150ms", cfg.Bridge.FetchWindow)
	}
	if cfg.Claim.ConfirmMethod != "identify" {
		t.Errorf("Claim.ConfirmMethod = %q, want %q", cfg.Claim.ConfirmMethod, "identify")
	}
	if cfg.Claim.Timeout != 20*time.Second {
		t.Errorf("Claim.Timeout = %v, want 20s", cfg.Claim.Timeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "empty namespace", mutate: func(c *Config) { c.Site.Namespace = "" }, wantErr: "site.namespace"},
		{name: "multi-level namespace", mutate: func(c *Config) { c.Site.Namespace = "a/b" }, wantErr: "site.namespace"},
		{name: "wildcard namespace", mutate: func(c *Config) { c.Site.Namespace = "#" }, wantErr: "site.namespace"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "zero default timeout", mutate: func(c *Config) { c.Bridge.DefaultTimeout = 0 }, wantErr: "bridge.default_timeout"},
		{name: "poll slower than timeout", mutate: func(c *Config) { c.Bridge.PollInterval = 20 * time.Second }, wantErr: "bridge.poll_interval"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Bridge.PollInterval = 0 }, wantErr: "bridge.poll_interval"},
		{name: "negative expiry", mutate: func(c *Config) { c.Bridge.MessageExpiry = -time.Second }, wantErr: "bridge.message_expiry"},
		{name: "zero fetch window", mutate: func(c *Config) { c.Bridge.FetchWindow = 0 }, wantErr: "bridge.fetch_window"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Bridge.Strategy = "carrier-pigeon" }, wantErr: "bridge.strategy"},
		{name: "missing confirm method", mutate: func(c *Config) { c.Claim.ConfirmMethod = "" }, wantErr: "claim.confirm_method"},
		{name: "zero claim timeout", mutate: func(c *Config) { c.Claim.Timeout = 0 }, wantErr: "claim.timeout"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "security.jwt.secret"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "security.jwt.secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0
	cfg.Bridge.Strategy = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	for _, want := range []string{"site.id", "api.port", "bridge.strategy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("EDGEBERRY_NAMESPACE", "staging")
	t.Setenv("EDGEBERRY_DATABASE_PATH", "/custom/path.db")
	t.Setenv("EDGEBERRY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("EDGEBERRY_MQTT_USERNAME", "testuser")
	t.Setenv("EDGEBERRY_MQTT_PASSWORD", "testpass")
	t.Setenv("EDGEBERRY_API_HOST", "192.168.1.1")
	t.Setenv("EDGEBERRY_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("EDGEBERRY_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Site.Namespace != "staging" {
		t.Errorf("Site.Namespace = %q, want %q", cfg.Site.Namespace, "staging")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.Namespace != "edgeberry" {
		t.Errorf("defaultConfig Site.Namespace = %q, want %q", cfg.Site.Namespace, "edgeberry")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Bridge.DefaultTimeout != 10*time.Second {
		t.Errorf("defaultConfig Bridge.DefaultTimeout = %v, want 10s", cfg.Bridge.DefaultTimeout)
	}
	if cfg.Bridge.PollInterval != 300*time.Millisecond {
		t.Errorf("defaultConfig Bridge.PollInterval = %v, want 300ms", cfg.Bridge.PollInterval)
	}
	if !cfg.Bridge.ClearOnTimeout {
		t.Error("defaultConfig Bridge.ClearOnTimeout = false, want true")
	}
	if cfg.Claim.ConfirmMethod != "linkToUserAccount" {
		t.Errorf("defaultConfig Claim.ConfirmMethod = %q, want linkToUserAccount", cfg.Claim.ConfirmMethod)
	}
	if cfg.Claim.Timeout != 10*time.Second {
		t.Errorf("defaultConfig Claim.Timeout = %v, want 10s", cfg.Claim.Timeout)
	}
}
