package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "has:attachment filename:pdf", cfg.SearchQuery)
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.True(t, cfg.ThresholdInclusive)
	assert.Equal(t, 3, cfg.MinKeywordLength)
	assert.Equal(t, "To Be Deleted", cfg.DeleteLabel)
	assert.True(t, cfg.ProcessOnlyFirstPDF)
	assert.Equal(t, 4*time.Second, cfg.RequestDelay)
	assert.Equal(t, EvaluationLocal, cfg.RuleEvaluation)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "delete_label": "Rejected",
  "max_emails": 10,
  "request_delay": "2s",
  "threshold_inclusive": false
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("USE_OPENAI", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test-key-123456")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "Rejected", cfg.DeleteLabel)
	assert.Equal(t, 10, cfg.MaxEmails)
	assert.Equal(t, 2*time.Second, cfg.RequestDelay)
	assert.False(t, cfg.ThresholdInclusive)
	assert.Equal(t, 0.75, cfg.MatchThreshold)
	assert.True(t, cfg.UseOpenAI)
	assert.Equal(t, "sk-test-key-123456", cfg.OpenAIAPIKey)
	assert.Equal(t, "has:attachment filename:pdf", cfg.SearchQuery, "defaults should survive partial files")
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DeleteLabel, cfg.DeleteLabel)
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.DeleteLabel = "Archive Me"
	cfg.MaxEmails = 25
	require.NoError(t, cfg.SaveTo(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "Archive Me", loaded.DeleteLabel)
	assert.Equal(t, 25, loaded.MaxEmails)
	assert.Equal(t, cfg.RequestDelay, loaded.RequestDelay)
}

func TestSaveTo_DurationsAsStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.RequestDelay = 4 * time.Second
	cfg.RetryBackoff = 1500 * time.Millisecond
	require.NoError(t, cfg.SaveTo(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_delay": "4s"`)
	assert.Contains(t, string(data), `"retry_backoff": "1.5s"`)
	assert.Equal(t, 1, bytes.Count(data, []byte(`"request_delay"`)))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, loaded.RequestDelay)
	assert.Equal(t, 1500*time.Millisecond, loaded.RetryBackoff)
	assert.Equal(t, cfg.LabelDelay, loaded.LabelDelay)
}

func TestValidate_LLMEvaluationWithoutProvider(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, buf.String(), "gemini without a key is fine for local evaluation")

	cfg.RuleEvaluation = EvaluationLLM
	require.NoError(t, cfg.Validate())
	assert.Contains(t, buf.String(), "No usable LLM provider")
	assert.Contains(t, buf.String(), "GEMINI_API_KEY")

	buf.Reset()
	cfg.GeminiAPIKey = "key"
	require.NoError(t, cfg.Validate())
	assert.Empty(t, buf.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero threshold", mutate: func(c *Config) { c.MatchThreshold = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.MatchThreshold = 1.5 }, wantErr: true},
		{name: "threshold of one", mutate: func(c *Config) { c.MatchThreshold = 1 }},
		{name: "empty delete label", mutate: func(c *Config) { c.DeleteLabel = "  " }, wantErr: true},
		{name: "unknown evaluator", mutate: func(c *Config) { c.RuleEvaluation = "magic" }, wantErr: true},
		{name: "openai without key", mutate: func(c *Config) { c.UseOpenAI = true }, wantErr: true},
		{name: "claude without key", mutate: func(c *Config) { c.UseClaude = true }, wantErr: true},
		{name: "vertex without project", mutate: func(c *Config) { c.UseVertex = true }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "negative max", mutate: func(c *Config) { c.MaxEmails = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLLMEnabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.LLMEnabled(), "gemini is on by default but has no key")

	cfg.GeminiAPIKey = "key"
	assert.True(t, cfg.LLMEnabled())

	cfg.UseGemini = false
	assert.False(t, cfg.LLMEnabled())
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenAIAPIKey = "sk-abcdefghijklmnop"
	cfg.GeminiAPIKey = "short"

	red := cfg.Redacted()
	assert.Equal(t, "sk-a****mnop", red.OpenAIAPIKey)
	assert.Equal(t, "****", red.GeminiAPIKey)
	assert.Equal(t, "", red.AnthropicAPIKey)
	assert.Equal(t, "sk-abcdefghijklmnop", cfg.OpenAIAPIKey, "original must be untouched")
}
