package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/burndrop/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Load with no config files should use defaults
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5708, cfg.Server.Port)
	assert.Equal(t, int64(100<<20), cfg.Server.MaxUploadSize)
	assert.False(t, cfg.Server.ConcealAuthErrors)
	assert.Equal(t, 24*time.Hour, cfg.Service.DefaultTTL)
	assert.Equal(t, 168*time.Hour, cfg.Service.MaxTTL)
	assert.Equal(t, 100, cfg.Service.MaxDownloadsLimit)
	assert.Equal(t, 3, cfg.Service.IDAttempts)
	assert.Equal(t, 3, cfg.Service.StoreRetries)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 100, cfg.Sweeper.BatchSize)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "burndrop.db", cfg.Database.DSN)
	assert.Equal(t, "burndrop_shares", cfg.Database.Tables.Shares)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "filesystem", cfg.Storage.Type)
	assert.Equal(t, "./data", cfg.Storage.Path)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Equal(t, 5, cfg.RateLimit.PasswordAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, []string{"Content-Disposition", "X-Downloads-Remaining"}, cfg.CORS.ExposedHeaders)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ConfigFile(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  port: 8080
  max_upload_size: 1048576
  conceal_auth_errors: true
service:
  default_ttl: 6h
  max_ttl: 72h
  max_downloads_limit: 10
  store_retries: 0
sweeper:
  enabled: false
  interval: 30s
  tombstone_retention: -1s
database:
  type: postgres
  dsn: postgres://localhost/test
  tables:
    shares: custom_shares
storage:
  type: s3
  s3:
    bucket: drops
    endpoint: http://localhost:9000
    prefix: burndrop/
ratelimit:
  password_attempts: 0
cors:
  enabled: true
  allowed_origins:
    - https://drop.example.com
log:
  level: debug
  format: json
`)

	cfg, err := config.Load([]string{configPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxUploadSize)
	assert.True(t, cfg.Server.ConcealAuthErrors)
	assert.Equal(t, 6*time.Hour, cfg.Service.DefaultTTL)
	assert.Equal(t, 72*time.Hour, cfg.Service.MaxTTL)
	assert.Equal(t, 10, cfg.Service.MaxDownloadsLimit)
	assert.Equal(t, 0, cfg.Service.StoreRetries)
	assert.False(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, -time.Second, cfg.Sweeper.TombstoneRetention)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://localhost/test", cfg.Database.DSN)
	assert.Equal(t, "custom_shares", cfg.Database.Tables.Shares)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "drops", cfg.Storage.S3.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.S3.Endpoint)
	assert.Equal(t, "burndrop/", cfg.Storage.S3.Prefix)
	assert.Equal(t, 0, cfg.RateLimit.PasswordAttempts)
	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"https://drop.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	basePath := writeConfig(t, "base.yaml", `
server:
  port: 5708
service:
  default_ttl: 12h
database:
  type: sqlite
  dsn: burndrop.db
log:
  level: info
`)
	overridePath := writeConfig(t, "override.yaml", `
server:
  port: 9000
log:
  level: warn
`)

	// Load with merge (later files override earlier)
	cfg, err := config.Load([]string{basePath, overridePath}, nil)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)

	// Preserved values from base
	assert.Equal(t, 12*time.Hour, cfg.Service.DefaultTTL)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  port: 8080
service:
  default_ttl: 6h
`)

	t.Setenv("BURNDROP_SERVER_PORT", "9090")
	t.Setenv("BURNDROP_SERVICE_DEFAULT_TTL", "2h")
	t.Setenv("BURNDROP_STORAGE_S3_BUCKET", "from-env")
	t.Setenv("BURNDROP_SERVER_CONCEAL_AUTH_ERRORS", "true")

	cfg, err := config.Load([]string{configPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Service.DefaultTTL)
	assert.Equal(t, "from-env", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Server.ConcealAuthErrors)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("BURNDROP_SERVER_PORT", "9090")
	t.Setenv("BURNDROP_DATABASE_TYPE", "postgres")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 5708, "")
	flags.String("db-type", "", "")
	flags.String("storage-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port=7000", "--storage-path=/srv/blobs"}))

	cfg, err := config.Load(nil, flags)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/srv/blobs", cfg.Storage.Path)
	// unchanged flags do not shadow the environment
	assert.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port out of range", "server:\n  port: 99999\n"},
		{"default ttl above max", "service:\n  default_ttl: 200h\n  max_ttl: 100h\n"},
		{"zero downloads limit", "service:\n  max_downloads_limit: 0\n"},
		{"unknown database", "database:\n  type: mongo\n"},
		{"unknown storage", "storage:\n  type: tape\n"},
		{"s3 without bucket", "storage:\n  type: s3\n"},
		{"bad table name", "database:\n  tables:\n    shares: Shares-Table\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad log level", "log:\n  level: verbose\n"},
		{"bcrypt cost too low", "service:\n  bcrypt_cost: 2\n"},
		{"negative store retries", "service:\n  store_retries: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "config.yaml", tt.content)

			_, err := config.Load([]string{configPath}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoad_MemoryBackendNeedsNoDSN(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  type: memory
  dsn: ""
storage:
  type: memory
`)

	cfg, err := config.Load([]string{configPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load([]string{filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5708, cfg.Server.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BURNDROP_SERVER_PORT=6060\n"), 0o644))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("BURNDROP_SERVER_PORT") })

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestContext(t *testing.T) {
	_, err := config.FromContext(context.Background())
	require.Error(t, err)

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	got, err := config.FromContext(config.WithContext(context.Background(), cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
