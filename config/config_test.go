package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/zellolink/session"
)

var allVars = []string{
	"ZELLO_URL", "ZELLO_ISSUER", "ZELLO_PRIVATE_KEY", "ZELLO_USERNAME", "ZELLO_PASSWORD",
	"ZELLO_CHANNELS", "TOKEN_EXPIRATION", "STREAM_POLICY", "OUTPUT_DIR", "MAX_BUFFER_SIZE",
	"REDIS_URL", "REDIS_PASSWORD", "STREAM_TTL", "GEMINI_API_KEY", "STATUS_PORT", "LOG_LEVEL",
}

// setEnv clears every variable the loader reads, then applies vars.
// godotenv never overrides variables that are already set, even empty.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, name := range allVars {
		t.Setenv(name, "")
	}
	for name, value := range vars {
		t.Setenv(name, value)
	}
}

func credentials() map[string]string {
	return map[string]string{
		"ZELLO_ISSUER":      "issuer-1",
		"ZELLO_PRIVATE_KEY": "/keys/zello.pem",
		"ZELLO_USERNAME":    "alice",
		"ZELLO_PASSWORD":    "secret",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setEnv(t, credentials())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "wss://zello.io/ws", cfg.ServerURL)
	assert.Equal(t, "issuer-1", cfg.Issuer)
	assert.Equal(t, "/keys/zello.pem", cfg.PrivateKeyPath)
	assert.Equal(t, []string{"aiozello"}, cfg.Channels)
	assert.Equal(t, time.Hour, cfg.TokenExpiration)
	assert.Equal(t, session.PolicyStrict, cfg.StreamPolicy)
	assert.Equal(t, "recordings", cfg.OutputDir)
	assert.Equal(t, 5*1024*1024, cfg.MaxBufferSize)
	assert.Equal(t, 30*time.Minute, cfg.StreamTTL)
	assert.Equal(t, 9090, cfg.StatusPort)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestLoadConfigOverrides(t *testing.T) {
	vars := credentials()
	vars["ZELLO_URL"] = "ws://localhost:8080/ws"
	vars["ZELLO_CHANNELS"] = "ops, dispatch,,"
	vars["TOKEN_EXPIRATION"] = "120"
	vars["STREAM_POLICY"] = "lenient"
	vars["MAX_BUFFER_SIZE"] = "1024"
	vars["STREAM_TTL"] = "5"
	vars["STATUS_PORT"] = "0"
	vars["LOG_LEVEL"] = "debug"
	vars["GEMINI_API_KEY"] = "key"
	setEnv(t, vars)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", cfg.ServerURL)
	assert.Equal(t, []string{"ops", "dispatch"}, cfg.Channels)
	assert.Equal(t, 2*time.Minute, cfg.TokenExpiration)
	assert.Equal(t, session.PolicyLenient, cfg.StreamPolicy)
	assert.Equal(t, 1024, cfg.MaxBufferSize)
	assert.Equal(t, 5*time.Minute, cfg.StreamTTL)
	assert.Equal(t, 0, cfg.StatusPort)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "key", cfg.GeminiAPIKey)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		drop    string
		set     map[string]string
		wantErr string
	}{
		{name: "missing issuer", drop: "ZELLO_ISSUER", wantErr: "ZELLO_ISSUER environment variable is required"},
		{name: "missing password", drop: "ZELLO_PASSWORD", wantErr: "ZELLO_PASSWORD environment variable is required"},
		{name: "bad expiration", set: map[string]string{"TOKEN_EXPIRATION": "soon"}, wantErr: "invalid TOKEN_EXPIRATION"},
		{name: "zero expiration", set: map[string]string{"TOKEN_EXPIRATION": "0"}, wantErr: "must be positive"},
		{name: "bad policy", set: map[string]string{"STREAM_POLICY": "loose"}, wantErr: `invalid STREAM_POLICY: invalid stream policy "loose"`},
		{name: "bad buffer", set: map[string]string{"MAX_BUFFER_SIZE": "5MB"}, wantErr: "invalid MAX_BUFFER_SIZE"},
		{name: "bad ttl", set: map[string]string{"STREAM_TTL": "x"}, wantErr: "invalid STREAM_TTL"},
		{name: "bad port", set: map[string]string{"STATUS_PORT": "http"}, wantErr: "invalid STATUS_PORT"},
		{name: "bad level", set: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "invalid LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := credentials()
			delete(vars, tt.drop)
			for k, v := range tt.set {
				vars[k] = v
			}
			setEnv(t, vars)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
