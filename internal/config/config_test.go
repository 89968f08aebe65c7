package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "tasks.db", cfg.DatabaseURL)
	assert.Equal(t, DefaultSlackChannel, cfg.SlackChannel)
	assert.Equal(t, DefaultMinCompletionPercent, cfg.MinCompletionPercent)
	assert.Equal(t, 5, cfg.AgentMaxSteps)
	assert.Equal(t, *cfg, AppConfig)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PUBLIC_URL", "https://tasks.example.com/")
	t.Setenv("STATS_MIN_COMPLETION_PERCENT", "0")
	t.Setenv("AGENT_MAX_STEPS", "-1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "https://tasks.example.com", cfg.PublicURL)
	assert.Equal(t, 0, cfg.MinCompletionPercent)
	assert.Equal(t, 5, cfg.AgentMaxSteps)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConnectorTokens(t *testing.T) {
	tokens := NewConnectorTokens()
	assert.Empty(t, tokens.Lookup("slack"))

	// Loaded once, but later environment changes are still seen.
	t.Setenv("CONNECTOR_SLACK_TOKEN", "xoxb-1")
	assert.Equal(t, "xoxb-1", tokens.Lookup("slack"))
	assert.Empty(t, tokens.Lookup("github"))
}
