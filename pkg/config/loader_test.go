package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
  shutdown_timeout: 10s
db:
  host: localhost
  port: 5432
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	raw, err := LoadConfig("production", dir)
	require.NoError(t, err)

	var cfg struct {
		Server ServerConfig `yaml:"server"`
		DB     DBConfig     `yaml:"db"`
	}
	require.NoError(t, Decode(raw, &cfg))

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
}

func TestLoadConfig_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: "${JWT_SECRET_VALUE}"
smtp:
  password: "${SMTP_PASS_UNSET_FOR_TEST}"
`)
	writeFile(t, dir, "secrets.env", "# comment\nJWT_SECRET_VALUE=\"s3cr3t\"\n")

	raw, err := LoadConfig("local", dir)
	require.NoError(t, err)

	var cfg struct {
		JWT  JWTConfig  `yaml:"jwt"`
		SMTP SMTPConfig `yaml:"smtp"`
	}
	require.NoError(t, Decode(raw, &cfg))

	assert.Equal(t, "s3cr3t", cfg.JWT.Secret)
	assert.Empty(t, cfg.SMTP.Password)
}

func TestLoadConfig_MissingBaseFails(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")

	cfg := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, "pg", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "postgres://:@pg:6543/?sslmode=disable", cfg.DSN())
}

func TestOverrideMQFromEnv_ParsesEnabled(t *testing.T) {
	t.Setenv("MQ_ENABLED", "false")
	cfg := MQConfig{Enabled: true}
	OverrideMQFromEnv(&cfg)
	assert.False(t, cfg.Enabled)

	t.Setenv("MQ_ENABLED", "not-a-bool")
	OverrideMQFromEnv(&cfg)
	assert.False(t, cfg.Enabled)
}
