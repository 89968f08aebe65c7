package connector

import (
	"context"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringAccessToken(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring([]keyring.Item{
		{Key: "connector/slack", Data: []byte("xoxb-stored")},
	}))

	token, err := k.AccessToken(context.Background(), "slack")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-stored", token)

	_, err = k.AccessToken(context.Background(), "github")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestKeyringStore(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil))
	require.NoError(t, k.Store("slack", "xoxb-new"))

	token, err := k.AccessToken(context.Background(), "slack")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-new", token)
}

func TestChainFallsBackToEnv(t *testing.T) {
	env := &Env{lookup: func(name string) string {
		if name == "slack" {
			return "xoxb-env"
		}
		return ""
	}}
	chain := Chain{NewKeyring(keyring.NewArrayKeyring(nil)), env}

	token, err := chain.AccessToken(context.Background(), "slack")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-env", token)

	_, err = chain.AccessToken(context.Background(), "github")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestEnvReadsConnectorSetting(t *testing.T) {
	env := NewEnv()
	t.Setenv("CONNECTOR_SLACK_TOKEN", "xoxb-env")

	token, err := env.AccessToken(context.Background(), "slack")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-env", token)
}
