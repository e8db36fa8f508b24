package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"franklin/internal/domain/usecase"
	"franklin/pkg/client/psql"
	"franklin/pkg/client/s3"
)

var ErrMissingEnv = errors.New("missing environment variables")

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	DispatchInProcess = "inprocess"
	DispatchRabbitMQ  = "rabbitmq"
)

type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

type ElevenLabs struct {
	APIKey  string
	VoiceID string
	BaseURL string
}

type DID struct {
	APIKey  string
	BaseURL string
}

type Redis struct {
	Addr string
	DB   int
}

// Config is read once at startup.
type Config struct {
	HTTPAddr string

	StubProviders    bool
	StubLatency      time.Duration
	StubPendingPolls int
	SpeechEnabled    bool

	OpenAI           OpenAI
	ElevenLabs       ElevenLabs
	DID              DID
	FranklinImageURL string

	VideoPollInterval time.Duration
	VideoMaxPolls     int
	JobRetention      time.Duration
	SweepInterval     time.Duration

	Store      string
	SQLitePath string
	Redis      *Redis
	Postgres   psql.Config
	S3         *s3.Config

	Dispatch    string
	RabbitMQURL string

	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads envFile when present, then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("No %s file found. Falling back to OS environment variables.", envFile)
		}
	}
	return FromEnv(os.LookupEnv)
}

type reader struct {
	lookup  func(string) (string, bool)
	missing []string
	errs    []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) must(key string) string {
	v := r.str(key, "")
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return def
	}
	return b
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return def
	}
	return d
}

// FromEnv builds a Config from lookup. Connection settings are required only
// for the backends that are selected.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	r := &reader{lookup: lookup}

	cfg := Config{
		HTTPAddr:         r.str("HTTP_ADDR", ":8080"),
		StubProviders:    r.boolean("STUB_PROVIDERS", r.boolean("FAKE_DEMO_MODE", false)),
		StubLatency:      r.duration("STUB_STAGE_LATENCY", time.Second),
		StubPendingPolls: r.integer("STUB_VIDEO_POLLS", 1),
		SpeechEnabled:    r.boolean("SPEECH_STAGE_ENABLED", true),

		OpenAI: OpenAI{
			APIKey:  r.str("OPENAI_API_KEY", ""),
			Model:   r.str("OPENAI_MODEL", "gpt-4"),
			BaseURL: r.str("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		ElevenLabs: ElevenLabs{
			APIKey:  r.str("ELEVENLABS_API_KEY", ""),
			VoiceID: r.str("ELEVENLABS_VOICE_ID", ""),
			BaseURL: r.str("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		},
		DID: DID{
			APIKey:  r.str("DID_API_KEY", ""),
			BaseURL: r.str("DID_BASE_URL", "https://api.d-id.com"),
		},
		FranklinImageURL: r.str("BEN_FRANKLIN_IMAGE_URL", ""),

		VideoPollInterval: r.duration("VIDEO_POLL_INTERVAL", usecase.DefaultPollInterval),
		VideoMaxPolls:     r.integer("VIDEO_MAX_POLLS", usecase.DefaultMaxPollAttempts),
		JobRetention:      r.duration("JOB_RETENTION", time.Hour),
		SweepInterval:     r.duration("JOB_SWEEP_INTERVAL", 10*time.Minute),

		Store:      strings.ToLower(r.str("JOB_STORE", StoreMemory)),
		SQLitePath: r.str("SQLITE_PATH", "franklin.db"),
		Dispatch:   strings.ToLower(r.str("DISPATCH_MODE", DispatchInProcess)),

		RateLimit:       r.integer("RATE_LIMIT", 10),
		RateLimitWindow: r.duration("RATE_LIMIT_WINDOW", time.Second),
	}

	if host := r.str("REDIS_HOST", ""); host != "" {
		cfg.Redis = &Redis{
			Addr: host + ":" + r.str("REDIS_PORT", "6379"),
			DB:   r.integer("REDIS_DB", 0),
		}
	}

	if host := r.str("S3_HOST", ""); host != "" {
		endpoint := host
		if port := r.str("S3_PORT", ""); port != "" {
			endpoint += ":" + port
		}
		cfg.S3 = &s3.Config{
			Endpoint:  endpoint,
			AccessKey: r.str("S3_ACCESS_KEY", ""),
			SecretKey: r.str("S3_SECRET_KEY", ""),
			Bucket:    r.str("S3_BUCKET", ""),
			Region:    r.str("S3_REGION", ""),
			Secure:    r.boolean("S3_SECURE", false),
		}
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if cfg.Redis == nil {
			r.missing = append(r.missing, "REDIS_HOST")
		}
	case StorePostgres:
		cfg.Postgres = psql.Config{
			Host:     r.must("PSQL_HOST"),
			User:     r.must("PSQL_USER"),
			Password: r.must("PSQL_PASSWORD"),
			DBName:   r.must("PSQL_DB"),
			Port:     r.integer("PSQL_PORT", 5432),
			SslMode:  r.str("PSQL_SSLMODE", "disable"),
		}
	default:
		r.errs = append(r.errs, fmt.Errorf("unknown JOB_STORE %q", cfg.Store))
	}

	switch cfg.Dispatch {
	case DispatchInProcess:
	case DispatchRabbitMQ:
		user := r.must("RABBITMQ_USER")
		password := r.must("RABBITMQ_PASSWORD")
		host := r.must("RABBITMQ_HOST")
		port := r.str("RABBITMQ_PORT", "5672")
		cfg.RabbitMQURL = "amqp://" + user + ":" + password + "@" + host + ":" + port + "/"

		if cfg.Store == StoreMemory {
			r.errs = append(r.errs, errors.New("DISPATCH_MODE=rabbitmq needs a shared JOB_STORE, not memory"))
		}
		if cfg.Redis == nil {
			r.errs = append(r.errs, errors.New("DISPATCH_MODE=rabbitmq needs REDIS_HOST to relay progress events"))
		}
	default:
		r.errs = append(r.errs, fmt.Errorf("unknown DISPATCH_MODE %q", cfg.Dispatch))
	}

	if cfg.VideoMaxPolls <= 0 {
		r.errs = append(r.errs, fmt.Errorf("VIDEO_MAX_POLLS must be positive, got %d", cfg.VideoMaxPolls))
	}
	if cfg.VideoPollInterval <= 0 {
		r.errs = append(r.errs, fmt.Errorf("VIDEO_POLL_INTERVAL must be positive, got %s", cfg.VideoPollInterval))
	}

	if len(r.missing) > 0 {
		r.errs = append(r.errs, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(r.missing, ", ")))
	}
	return cfg, errors.Join(r.errs...)
}

// ProviderError lists the provider settings still needed to answer questions.
// It is nil when stub providers are in use.
func (c Config) ProviderError() error {
	if c.StubProviders {
		return nil
	}

	var missing []string
	add := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	add("OPENAI_API_KEY", c.OpenAI.APIKey)
	add("DID_API_KEY", c.DID.APIKey)
	add("BEN_FRANKLIN_IMAGE_URL", c.FranklinImageURL)
	if c.SpeechEnabled {
		add("ELEVENLABS_API_KEY", c.ElevenLabs.APIKey)
		add("ELEVENLABS_VOICE_ID", c.ElevenLabs.VoiceID)
		if c.S3 == nil {
			missing = append(missing, "S3_HOST")
		} else {
			add("S3_BUCKET", c.S3.Bucket)
			add("S3_ACCESS_KEY", c.S3.AccessKey)
			add("S3_SECRET_KEY", c.S3.SecretKey)
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return &usecase.ConfigError{Missing: missing}
}

// Summary describes the configuration without exposing secrets.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"stubProviders": c.StubProviders,
		"speechStage":   c.SpeechEnabled,
		"store":         c.Store,
		"dispatch":      c.Dispatch,
		"redis":         c.Redis != nil,
		"objectStorage": c.S3 != nil,
		"providers": map[string]bool{
			"openai":     c.OpenAI.APIKey != "",
			"elevenlabs": c.ElevenLabs.APIKey != "" && c.ElevenLabs.VoiceID != "",
			"did":        c.DID.APIKey != "" && c.FranklinImageURL != "",
		},
		"videoPollInterval": c.VideoPollInterval.String(),
		"videoMaxPolls":     c.VideoMaxPolls,
		"jobRetention":      c.JobRetention.String(),
		"ready":             c.ProviderError() == nil,
	}
}
