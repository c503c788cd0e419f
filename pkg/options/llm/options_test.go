package llm

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingOptionsDefaults(t *testing.T) {
	o := NewEmbeddingOptions()
	assert.Empty(t, o.Validate())
	assert.Equal(t, 10, o.BatchSize)
	assert.Equal(t, 100*time.Millisecond, o.BatchPause)
	assert.Equal(t, 1, o.Concurrency)

	m := o.ToConfigMap()
	assert.Equal(t, "nomic-embed-text", m["embed_model"])
	assert.Equal(t, 60*time.Second, m["timeout"])
}

func TestEmbeddingOptionsValidateAggregates(t *testing.T) {
	o := NewEmbeddingOptions()
	o.Dim = 0
	o.BatchSize = 0
	o.Concurrency = 0
	assert.Len(t, o.Validate(), 3)
}

func TestChatOptionsFlagsAndEnvFallback(t *testing.T) {
	t.Setenv(ChatAPIKeyEnv, "env-key")

	o := NewChatOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--chat.model=gpt-4o", "--chat.temperature=0.2"}))
	require.NoError(t, o.Complete())

	assert.Equal(t, "env-key", o.APIKey)
	assert.Equal(t, "gpt-4o", o.ToConfigMap()["chat_model"])
	assert.InDelta(t, 0.2, o.Temperature, 1e-9)
	assert.Empty(t, o.Validate())
}

func TestChatOptionsExplicitKeyWins(t *testing.T) {
	t.Setenv(ChatAPIKeyEnv, "env-key")

	o := NewChatOptions()
	o.APIKey = "flag-key"
	require.NoError(t, o.Complete())
	assert.Equal(t, "flag-key", o.APIKey)
}

func TestChatOptionsValidate(t *testing.T) {
	o := NewChatOptions()
	o.Temperature = 3
	o.MaxTokens = 0
	assert.Len(t, o.Validate(), 2)
}
