package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5001", cfg.Server.LoginAddr)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.ChatAddr)
	assert.Equal(t, "0.0.0.0:5002", cfg.Server.RegisterAddr)
	assert.Equal(t, 10*time.Minute, cfg.Token.TTL)
	assert.Equal(t, 5*time.Second, cfg.AuthGateway.Timeout)
	assert.False(t, cfg.AuthGateway.CacheEnabled)
	assert.Equal(t, "bcrypt", cfg.Password.Hasher)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("MESSENGER_TOKEN_TTL", "20m")
	t.Setenv("MESSENGER_AUTH_LOGIN_URL", "http://login:5001/")
	t.Setenv("MESSENGER_AUTH_CACHE_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Minute, cfg.Token.TTL)
	// 末尾斜杠被裁剪
	assert.Equal(t, "http://login:5001", cfg.AuthGateway.LoginURL)
	assert.True(t, cfg.AuthGateway.CacheEnabled)
}

func TestLoad_RejectsMissingHasher(t *testing.T) {
	resetViper(t)
	t.Setenv("MESSENGER_PASSWORD_HASHER", " ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password.hasher")
}

func TestLoad_RejectsUnknownHasher(t *testing.T) {
	resetViper(t)
	t.Setenv("MESSENGER_PASSWORD_HASHER", "md5")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_CacheTTLMustNotExceedTokenTTL(t *testing.T) {
	resetViper(t)
	t.Setenv("MESSENGER_AUTH_CACHE_TTL", "15m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache_ttl")
}

func TestLoad_InvalidDuration(t *testing.T) {
	resetViper(t)
	t.Setenv("MESSENGER_TOKEN_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
