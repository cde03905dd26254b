package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saint0x/ggchangelog/pkg/log"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	env, err := FromEnv(envMap(map[string]string{
		"GITHUB_TOKEN":   "gh",
		"OPENAI_API_KEY": "sk",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", env.Port)
	assert.False(t, env.Debug)
	assert.Equal(t, "ggchangelog.db", env.DatabasePath)
	assert.Equal(t, "gpt-4o-mini", env.OpenAIModel)
	assert.Equal(t, 0.3, env.OpenAITemperature)
	assert.Equal(t, 20, env.IngestChunkSize)
	assert.Equal(t, 20, env.ClassifyBatchSize)
	assert.Equal(t, 40, env.FormatBatchSize)
	assert.Equal(t, 0, env.MaxCommitPages)
	assert.Equal(t, 10, env.HostConcurrency)
	assert.Equal(t, 10.0, env.HostRateLimit)
	assert.Equal(t, 5, env.RetryAttempts)
	assert.Equal(t, time.Second, env.RetryBaseDelay)
	assert.Equal(t, 60*time.Second, env.RequestTimeout)
	assert.Equal(t, 15*time.Minute, env.JobTimeout)
	assert.Equal(t, time.Second, env.ProgressGrace)
	assert.Equal(t, 14*24*time.Hour, env.DefaultWindow)
	assert.Empty(t, env.RedisURL)
	assert.Nil(t, env.AllowedOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	env, err := FromEnv(envMap(map[string]string{
		"GITHUB_TOKEN":        "gh",
		"OPENAI_API_KEY":      "sk",
		"PORT":                "9090",
		"DEBUG":               "true",
		"REDIS_URL":           "redis://localhost:6379/0",
		"OPENAI_TEMPERATURE":  "0",
		"MAX_COMMIT_PAGES":    "3",
		"JOB_TIMEOUT":         "90",
		"RETRY_BASE_DELAY":    "250ms",
		"DEFAULT_WINDOW_DAYS": "7",
		"CORS_ORIGINS":        "http://localhost:3000, https://app.example.com,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", env.Port)
	assert.True(t, env.Debug)
	assert.Equal(t, "redis://localhost:6379/0", env.RedisURL)
	assert.Equal(t, 0.0, env.OpenAITemperature)
	assert.Equal(t, 3, env.MaxCommitPages)
	assert.Equal(t, 90*time.Second, env.JobTimeout)
	assert.Equal(t, 250*time.Millisecond, env.RetryBaseDelay)
	assert.Equal(t, 7*24*time.Hour, env.DefaultWindow)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, env.AllowedOrigins)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		credential bool
	}{
		{name: "missing github token", env: map[string]string{"OPENAI_API_KEY": "sk"}, credential: true},
		{name: "missing openai key", env: map[string]string{"GITHUB_TOKEN": "gh"}, credential: true},
		{name: "bad integer", env: map[string]string{"GITHUB_TOKEN": "gh", "OPENAI_API_KEY": "sk", "HOST_CONCURRENCY": "many"}},
		{name: "bad duration", env: map[string]string{"GITHUB_TOKEN": "gh", "OPENAI_API_KEY": "sk", "JOB_TIMEOUT": "soon"}},
		{name: "bad bool", env: map[string]string{"GITHUB_TOKEN": "gh", "OPENAI_API_KEY": "sk", "DEBUG": "maybe"}},
		{name: "zero chunk size", env: map[string]string{"GITHUB_TOKEN": "gh", "OPENAI_API_KEY": "sk", "INGEST_CHUNK_SIZE": "0"}},
		{name: "temperature out of range", env: map[string]string{"GITHUB_TOKEN": "gh", "OPENAI_API_KEY": "sk", "OPENAI_TEMPERATURE": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			require.Error(t, err)
			assert.Equal(t, tt.credential, errors.Is(err, ErrMissingCredential))
		})
	}
}

func TestValidateReadsEnvironment(t *testing.T) {
	// Run from an empty directory so no stray .env is picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("GITHUB_TOKEN", "gh")
	t.Setenv("OPENAI_API_KEY", "")
	_, err = Validate(log.New(false))
	assert.ErrorIs(t, err, ErrMissingCredential)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=from-dotenv\nPORT=7070\n"), 0o600))
	t.Setenv("PORT", "")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("PORT")

	env, err := Validate(log.New(false))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", env.OpenAIKey)
	assert.Equal(t, "7070", env.Port)
}
