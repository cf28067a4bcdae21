package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range []string{"DATABASE_PASSWORD", "DATABASE_HOST", "WORKER_BASE_URL", "WORKER_TOKEN",
		"OPENAI_API_KEY", "REDIS_ADDR", "REDIS_PASSWORD", "MINIO_SECRET_KEY", "WEBHOOK_SECRET", "LOG_LEVEL", "PORT"} {
		if _, ok := os.LookupEnv(k); ok {
			t.Setenv(k, "")
		}
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  port: 5432
  user: app
  password: secret
  name: footprint
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 120*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, 7, cfg.Worker.Concurrency)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CacheTTL)
	assert.Equal(t, 180*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, "postgres://app:secret@db:5432/footprint?sslmode=disable", cfg.DSN())
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  corsOrigins: ["https://app.example.com"]
database:
  driver: mysql
  host: mysql
  port: 3306
  user: root
  password: pw
  name: fp
worker:
  baseURL: http://worker:8000
  timeout: 30s
  concurrency: 3
scan:
  timeout: 2m
auth:
  apiKeys:
    acme: key-123
providers:
  maigret:
    enabled: false
    creditCost: 6
schedules:
  - name: nightly
    workspace: acme
    cron: "0 3 * * *"
    targetType: email
    target: sec@acme.io
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout)
	assert.Equal(t, "key-123", cfg.Auth.APIKeys["acme"])
	require.NotNil(t, cfg.Providers["maigret"].Enabled)
	assert.False(t, *cfg.Providers["maigret"].Enabled)
	assert.Equal(t, 6, *cfg.Providers["maigret"].CreditCost)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "root:pw@tcp(mysql:3306)/fp?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  password: from-file\n")
	t.Setenv("DATABASE_PASSWORD", "from-env")
	t.Setenv("WORKER_TOKEN", "tok")
	t.Setenv("PORT", "7070")
	t.Setenv("ADMIN_API_KEY", "adm")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4318")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "adm", cfg.Auth.AdminKey)
	assert.Equal(t, "otel:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, "footprint", cfg.Telemetry.ServiceName)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "tok", cfg.Worker.Token)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"bad driver", "database:\n  driver: sqlite\n", "database.driver"},
		{"bad worker url", "worker:\n  baseURL: worker\n", "worker.baseURL"},
		{"scan shorter than provider", "worker:\n  timeout: 60s\nscan:\n  timeout: 10s\n", "scan.timeout"},
		{"minio missing bucket", "minio:\n  enabled: true\n  endpoint: minio:9000\n", "minio"},
		{"telemetry without endpoint", "telemetry:\n  enabled: true\n", "telemetry.endpoint"},
		{"schedule missing target", "schedules:\n  - cron: '@daily'\n    workspace: a\n", "schedules[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
