package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: demo\n"))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Redis.Mode)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
	assert.Equal(t, 1, cfg.JWT.LoginDays)
	assert.True(t, cfg.JWT.StrictSession)
	assert.Equal(t, "deny", cfg.Authorization.OnEvaluationError)
	assert.Contains(t, cfg.Authorization.WhiteList, "/api/auth/login")
	assert.Contains(t, cfg.Authorization.LoginOnlyList, "/api/auth/info")
}

func TestLoadNormalizesBounds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
jwt:
  loginDays: 90
authorization:
  onEvaluationError: maybe
`))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.JWT.LoginDays)
	assert.Equal(t, "deny", cfg.Authorization.OnEvaluationError)
}

func TestLoadResolvesEnvPlaceholders(t *testing.T) {
	t.Setenv("GOAUTHZ_TEST_SECRET", "s3cret")
	cfg, err := Load(writeConfig(t, "jwt:\n  secret: ${GOAUTHZ_TEST_SECRET}\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestDSN(t *testing.T) {
	mysql := DatabaseConfig{Driver: "mysql", Username: "u", Password: "p", Host: "h", Port: 3306, Database: "d", Charset: "utf8mb4"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local", mysql.DSN())

	sqlite := DatabaseConfig{Driver: "sqlite"}
	assert.Equal(t, ":memory:", sqlite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}
