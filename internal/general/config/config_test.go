package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
database:
  user: app
  password: secret
  database: fleettrack
rabbitmq:
  user: guest
  password: guest
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, 256, cfg.HTTP.MaxConcurrent)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 16, cfg.Database.MaxConns)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 300*time.Second, cfg.FreshnessWindow())
	assert.Equal(t, 5.0, cfg.Ingest.RatePerSecond)
	assert.Equal(t, 10, cfg.Ingest.Burst)
	// absent secret gets a generated one rather than an empty key
	assert.NotEmpty(t, cfg.JWT.SecretKey)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
http:
  port: 8080
  max_concurrent: 64
database:
  host: db.internal
  port: 5433
  user: app
  password: secret
  database: fleettrack
  max_conns: 40
rabbitmq:
  host: mq.internal
  user: app
  password: secret
jwt:
  secret_key: super-secret
presence:
  freshness_window_seconds: 120
ingest:
  rate_per_second: 2.5
  burst: 4
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 64, cfg.HTTP.MaxConcurrent)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 40, cfg.Database.MaxConns)
	assert.Equal(t, "super-secret", cfg.JWT.SecretKey)
	assert.Equal(t, 120*time.Second, cfg.FreshnessWindow())
	assert.Equal(t, 2.5, cfg.Ingest.RatePerSecond)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database credentials",
			content: `
rabbitmq:
  user: guest
  password: guest
`,
			wantErr: "database.user is required",
		},
		{
			name: "missing rabbitmq credentials",
			content: `
database:
  user: app
  password: secret
  database: fleettrack
`,
			wantErr: "rabbitmq.user is required",
		},
		{
			name: "port out of range",
			content: `
http:
  port: 70000
database:
  user: app
  password: secret
  database: fleettrack
rabbitmq:
  user: guest
  password: guest
`,
			wantErr: "http.port must be in 1..65535",
		},
		{
			name: "negative pool size",
			content: `
database:
  user: app
  password: secret
  database: fleettrack
  max_conns: -1
rabbitmq:
  user: guest
  password: guest
`,
			wantErr: "database.max_conns cannot be negative",
		},
		{
			name: "negative presence window",
			content: minimalConfig + `
presence:
  freshness_window_seconds: -10
`,
			wantErr: "cannot be negative",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "http: [not a mapping"))
	require.Error(t, err)
}
