// Package config assembles every component's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/feedback"
	"github.com/abhisek/vidtutor/internal/keyframe"
	"github.com/abhisek/vidtutor/internal/lease"
	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/ocr"
	"github.com/abhisek/vidtutor/internal/resolver"
	"github.com/abhisek/vidtutor/internal/telemetry"
	"github.com/abhisek/vidtutor/internal/transcribe"
)

type Config struct {
	LLM        llm.Config
	Keyframe   keyframe.Config
	OCR        ocr.Config
	Transcribe transcribe.Config
	Index      contextindex.Config
	Resolver   resolver.Config
	Feedback   feedback.Config
	Lease      lease.Config
	OTel       telemetry.Config
	RedisURL   string
	DBPath     string
	Env        string
	LogLevel   string
}

// Load reads configuration from environment variables. In development a
// .env file in the working directory is loaded first; variables already
// set in the environment win.
func Load() (Config, error) {
	if getEnv("VIDTUTOR_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	kf := keyframe.DefaultConfig()
	o := ocr.DefaultConfig()
	tr := transcribe.DefaultConfig()
	idx := contextindex.DefaultConfig()
	res := resolver.DefaultConfig()
	fb := feedback.DefaultConfig()
	ls := lease.DefaultConfig()

	cfg := Config{
		LLM: llm.ConfigFromEnv(),
		Keyframe: keyframe.Config{
			SampleIntervalSeconds: getEnvFloat("VIDTUTOR_SAMPLE_INTERVAL", kf.SampleIntervalSeconds),
			SceneChangeThreshold:  getEnvFloat("VIDTUTOR_SCENE_THRESHOLD", kf.SceneChangeThreshold),
			DuplicateThreshold:    getEnvFloat("VIDTUTOR_DUPLICATE_THRESHOLD", kf.DuplicateThreshold),
			MaxFrames:             getEnvInt("VIDTUTOR_MAX_FRAMES", kf.MaxFrames),
			Workers:               kf.Workers,
			WorkDir:               getEnv("VIDTUTOR_WORK_DIR", kf.WorkDir),
			KeepFrames:            getEnvBool("VIDTUTOR_KEEP_FRAMES", kf.KeepFrames),
		},
		OCR: ocr.Config{
			Engine:        getEnv("VIDTUTOR_OCR_ENGINE", o.Engine),
			Language:      getEnv("VIDTUTOR_OCR_LANGUAGE", o.Language),
			MinConfidence: getEnvFloat("VIDTUTOR_OCR_MIN_CONFIDENCE", o.MinConfidence),
			MaxAttempts:   o.MaxAttempts,
			Workers:       getEnvInt("VIDTUTOR_OCR_WORKERS", o.Workers),
		},
		Transcribe: transcribe.Config{
			Engine:       getEnv("VIDTUTOR_TRANSCRIBE_ENGINE", tr.Engine),
			Model:        getEnv("VIDTUTOR_TRANSCRIBE_MODEL", tr.Model),
			Language:     getEnv("VIDTUTOR_TRANSCRIBE_LANGUAGE", tr.Language),
			ChunkSeconds: getEnvFloat("VIDTUTOR_TRANSCRIBE_CHUNK_SECONDS", tr.ChunkSeconds),
			MaxAttempts:  tr.MaxAttempts,
			Workers:      tr.Workers,
			WorkDir:      getEnv("VIDTUTOR_WORK_DIR", tr.WorkDir),
		},
		Index: contextindex.Config{
			BuildTimeout: getEnvDuration("VIDTUTOR_INDEX_BUILD_TIMEOUT", idx.BuildTimeout),
			Workers:      getEnvInt("VIDTUTOR_INDEX_WORKERS", idx.Workers),
		},
		Resolver: res,
		Feedback: fb,
		Lease: lease.Config{
			TTL:           getEnvDuration("VIDTUTOR_LEASE_TTL", ls.TTL),
			RetryInterval: ls.RetryInterval,
		},
		OTel: telemetry.Config{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "vidtutor"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		RedisURL: getEnv("VIDTUTOR_REDIS_URL", ""),
		DBPath:   getEnv("VIDTUTOR_DB", ""),
		Env:      getEnv("VIDTUTOR_ENV", "development"),
		LogLevel: getEnv("VIDTUTOR_LOG_LEVEL", ""),
	}

	cfg.Resolver.K = getEnvInt("VIDTUTOR_RESOLVER_TOP_K", res.K)
	cfg.Resolver.MinGapSeconds = getEnvFloat("VIDTUTOR_RESOLVER_MIN_GAP", res.MinGapSeconds)
	cfg.Resolver.Floor = getEnvFloat("VIDTUTOR_RESOLVER_FLOOR", res.Floor)
	cfg.Resolver.Embeddings = getEnvBool("VIDTUTOR_RESOLVER_EMBEDDINGS", res.Embeddings)

	cfg.Feedback.Timeout = getEnvDuration("VIDTUTOR_FEEDBACK_TIMEOUT", fb.Timeout)
	cfg.Feedback.MaxAttempts = getEnvInt("VIDTUTOR_FEEDBACK_MAX_ATTEMPTS", fb.MaxAttempts)
	cfg.Feedback.RequireCitation = getEnvBool("VIDTUTOR_FEEDBACK_REQUIRE_CITATION", fb.RequireCitation)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every component section and reports all failures.
func (c Config) Validate() error {
	var errs []error
	for _, v := range []interface{ Validate() error }{
		c.Keyframe, c.OCR, c.Transcribe, c.Index, c.Resolver, c.Feedback, c.Lease,
	} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("VIDTUTOR_ENV must be development or production, got %q", c.Env))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IndexFingerprint identifies the extraction settings an index is built
// with. Changing any of them invalidates stored indexes.
func (c Config) IndexFingerprint() (string, error) {
	return contextindex.Fingerprint(struct {
		Keyframe   keyframe.Config   `json:"keyframe"`
		OCR        ocr.Config        `json:"ocr"`
		Transcribe transcribe.Config `json:"transcribe"`
	}{c.Keyframe, c.OCR, c.Transcribe})
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
