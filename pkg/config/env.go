// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/saint0x/ggchangelog/pkg/log"
)

// ErrMissingCredential is returned when a required token is not set.
var ErrMissingCredential = errors.New("missing credential")

// Environment holds validated environment configuration
type Environment struct {
	GitHubToken   string
	GitHubBaseURL string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Port          string
	Debug         bool

	DatabasePath string
	RedisURL     string
	PromptsFile  string

	OpenAITemperature float64 `validate:"gte=0,lte=2"`
	IngestChunkSize   int     `validate:"gte=1"`
	ClassifyBatchSize int     `validate:"gte=1"`
	FormatBatchSize   int     `validate:"gte=1"`
	MaxCommitPages    int     `validate:"gte=0"`
	HostConcurrency   int     `validate:"gte=1"`
	HostRateLimit     float64 `validate:"gte=0"`
	RetryAttempts     int     `validate:"gte=1"`

	RetryBaseDelay time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	JobTimeout     time.Duration `validate:"gt=0"`
	ProgressGrace  time.Duration `validate:"gte=0"`
	DefaultWindow  time.Duration `validate:"gt=0"`

	AllowedOrigins []string
}

// Validate checks and validates all required environment variables. A .env
// file in the working directory is loaded first when present; variables
// already set win over it.
func Validate(logger *log.Logger) (*Environment, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Debug("Loaded .env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*Environment, error) {
	r := reader{getenv: getenv}

	env := &Environment{
		GitHubToken:   r.str("GITHUB_TOKEN", ""),
		GitHubBaseURL: r.str("GITHUB_API_URL", ""),
		OpenAIKey:     r.str("OPENAI_API_KEY", ""),
		OpenAIModel:   r.str("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: r.str("OPENAI_BASE_URL", ""),
		Port:          r.str("PORT", "8080"),
		Debug:         r.boolean("DEBUG"),

		DatabasePath: r.str("DATABASE_PATH", "ggchangelog.db"),
		RedisURL:     r.str("REDIS_URL", ""),
		PromptsFile:  r.str("PROMPTS_FILE", ""),

		OpenAITemperature: r.float("OPENAI_TEMPERATURE", 0.3),
		IngestChunkSize:   r.int("INGEST_CHUNK_SIZE", 20),
		ClassifyBatchSize: r.int("CLASSIFY_BATCH_SIZE", 20),
		FormatBatchSize:   r.int("FORMAT_BATCH_SIZE", 40),
		MaxCommitPages:    r.int("MAX_COMMIT_PAGES", 0),
		HostConcurrency:   r.int("HOST_CONCURRENCY", 10),
		HostRateLimit:     r.float("HOST_RATE_LIMIT", 10),
		RetryAttempts:     r.int("RETRY_ATTEMPTS", 5),

		RetryBaseDelay: r.duration("RETRY_BASE_DELAY", time.Second),
		RequestTimeout: r.duration("REQUEST_TIMEOUT", 60*time.Second),
		JobTimeout:     r.duration("JOB_TIMEOUT", 15*time.Minute),
		ProgressGrace:  r.duration("PROGRESS_GRACE", time.Second),
		DefaultWindow:  time.Duration(r.int("DEFAULT_WINDOW_DAYS", 14)) * 24 * time.Hour,

		AllowedOrigins: r.list("CORS_ORIGINS"),
	}
	if r.err != nil {
		return nil, r.err
	}

	// Validate GitHub token
	if env.GitHubToken == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN not configured: %w", ErrMissingCredential)
	}

	// Validate OpenAI key
	if env.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured: %w", ErrMissingCredential)
	}

	if err := validator.New().Struct(env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid configuration: %s must be %s %s", verrs[0].Field(), verrs[0].Tag(), verrs[0].Param())
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return env, nil
}

// reader parses variables and keeps the first error.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) lookup(key string) string {
	return strings.TrimSpace(r.getenv(key))
}

func (r *reader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
}

func (r *reader) str(key, def string) string {
	if v := r.lookup(key); v != "" {
		return v
	}
	return def
}

func (r *reader) boolean(key string) bool {
	v := r.lookup(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
	}
	return b
}

func (r *reader) int(key string, def int) int {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

// duration accepts Go durations ("90s") or plain seconds ("90").
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v := r.lookup(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
