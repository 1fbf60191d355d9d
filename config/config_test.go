package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/utilibill/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utilibill.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
admin:
  address: GADMIN
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "utilibill.db" {
		t.Errorf("database defaults: %+v", cfg.Database)
	}
	if cfg.Oracle.MaxAgeSeconds != 3600 || cfg.Oracle.MinReliability != 30 {
		t.Errorf("oracle defaults: %+v", cfg.Oracle)
	}
	if cfg.Ledger.Mode != "none" {
		t.Errorf("ledger mode = %q", cfg.Ledger.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults: %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics path = %q", cfg.Metrics.Path)
	}
	if cfg.Kafka.Topic != "meter-readings" {
		t.Errorf("kafka topic = %q", cfg.Kafka.Topic)
	}
}

func TestLoad_FullFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
database:
  driver: sqlite
  dsn: /var/lib/utilibill/data.db
redis:
  enabled: true
  addr: localhost:6379
  ttl: 1h
kafka:
  enabled: true
  brokers: [localhost:9092]
  topic: readings
oracle:
  max_age_seconds: 900
  min_reliability: 60
  fallback_enabled: true
admin:
  address: GADMIN
ledger:
  mode: memory
  holding_address: GCOLLECT
logging:
  level: debug
  format: console
metrics:
  enabled: true
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != time.Hour {
		t.Errorf("redis: %+v", cfg.Redis)
	}
	if !cfg.Kafka.Enabled || cfg.Kafka.Topic != "readings" {
		t.Errorf("kafka: %+v", cfg.Kafka)
	}
	if cfg.Oracle.MaxAgeSeconds != 900 || cfg.Oracle.MinReliability != 60 || !cfg.Oracle.FallbackEnabled {
		t.Errorf("oracle: %+v", cfg.Oracle)
	}
	if cfg.Ledger.Mode != "memory" || cfg.Ledger.HoldingAddress != "GCOLLECT" {
		t.Errorf("ledger: %+v", cfg.Ledger)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UTILIBILL_SERVER_PORT", "7070")
	t.Setenv("UTILIBILL_ORACLE_MAX_AGE", "120")
	t.Setenv("UTILIBILL_LOG_LEVEL", "warn")

	cfg, err := config.Load(writeConfig(t, minimalConfig+`
server:
  port: 9090
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if cfg.Oracle.MaxAgeSeconds != 120 {
		t.Errorf("oracle max age = %d", cfg.Oracle.MaxAgeSeconds)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "missing admin address",
			content: `server: {port: 8080}`,
			wantMsg: "admin.address",
		},
		{
			name: "bad database driver",
			content: minimalConfig + `
database: {driver: postgres}`,
			wantMsg: "database.driver",
		},
		{
			name: "redis enabled without addr",
			content: minimalConfig + `
redis: {enabled: true}`,
			wantMsg: "redis.addr",
		},
		{
			name: "kafka enabled without brokers",
			content: minimalConfig + `
kafka: {enabled: true}`,
			wantMsg: "kafka.brokers",
		},
		{
			name: "reliability out of range",
			content: minimalConfig + `
oracle: {min_reliability: 150}`,
			wantMsg: "min_reliability",
		},
		{
			name: "bad ledger mode",
			content: minimalConfig + `
ledger: {mode: stellar}`,
			wantMsg: "ledger.mode",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantMsg)
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("file fallback: %v", err)
	}
	if cfg.Admin.Address != "GADMIN" {
		t.Errorf("admin = %q", cfg.Admin.Address)
	}

	t.Setenv("UTILIBILL_ADMIN_ADDRESS", "GENVADMIN")
	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("env fallback: %v", err)
	}
	if cfg.Admin.Address != "GENVADMIN" {
		t.Errorf("admin = %q", cfg.Admin.Address)
	}
}

func TestLoadWithFallback_NoConfig(t *testing.T) {
	if os.Getenv("UTILIBILL_ADMIN_ADDRESS") != "" {
		t.Skip("admin address set in environment")
	}
	if _, err := config.LoadWithFallback(""); err == nil {
		t.Fatal("expected error with no config source")
	}
}
