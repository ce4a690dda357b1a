package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.AnthropicModel)
	assert.Equal(t, int64(DefaultMaxTokens), cfg.AnthropicMaxTokens)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, DefaultSolanaRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, DefaultMeteoraAPIURL, cfg.MeteoraAPIURL)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 10, cfg.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 6, cfg.SearchBroadenThreshold)
	assert.Zero(t, cfg.SearchDelay)
	assert.Zero(t, cfg.SearchRetries)
	assert.False(t, cfg.MemoryEnabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", " sk-test ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("PORT", "9000")
	t.Setenv("ENVIRONMENT", "Development")
	t.Setenv("DLMM_SCOUT_RATE_LIMIT_MAX", "3")
	t.Setenv("DLMM_SCOUT_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("DLMM_SCOUT_SEARCH_BROADEN_THRESHOLD", "3")
	t.Setenv("DLMM_SCOUT_SEARCH_DELAY", "2500ms")
	t.Setenv("DLMM_SCOUT_SEARCH_RETRIES", "2")
	t.Setenv("DLMM_SCOUT_MEMORY_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.AnthropicAPIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 3, cfg.RateLimitMax)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 3, cfg.SearchBroadenThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.SearchDelay)
	assert.Equal(t, 2, cfg.SearchRetries)
	assert.True(t, cfg.MemoryEnabled)
}

func TestLoad_PrefixedNameWins(t *testing.T) {
	t.Setenv("DLMM_SCOUT_PORT", "7000")
	t.Setenv("PORT", "9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DLMM_SCOUT_ANTHROPIC_MODEL=claude-from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DLMM_SCOUT_ANTHROPIC_MODEL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-from-file", cfg.AnthropicModel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero rate limit", "DLMM_SCOUT_RATE_LIMIT_MAX", "0"},
		{"zero window", "DLMM_SCOUT_RATE_LIMIT_WINDOW", "0s"},
		{"negative threshold", "DLMM_SCOUT_SEARCH_BROADEN_THRESHOLD", "-1"},
		{"negative retries", "DLMM_SCOUT_SEARCH_RETRIES", "-2"},
		{"bad port", "PORT", "70000"},
		{"bad rpc url", "SOLANA_RPC_URL", "ftp://node"},
		{"rpc url without host", "SOLANA_RPC_URL", "https://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
