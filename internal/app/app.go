// Package app wires stores, engines and services behind the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abhisek/vidtutor/internal/config"
	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/feedback"
	"github.com/abhisek/vidtutor/internal/keyframe"
	"github.com/abhisek/vidtutor/internal/lease"
	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/ocr"
	"github.com/abhisek/vidtutor/internal/resolver"
	"github.com/abhisek/vidtutor/internal/review"
	"github.com/abhisek/vidtutor/internal/store"
	"github.com/abhisek/vidtutor/internal/transcribe"
)

// ErrNoProvider is returned by operations that need a generative backend
// when none is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// App holds the wired services. Review is nil when no LLM provider is
// configured.
type App struct {
	Config   config.Config
	Store    *store.Store
	Indexes  *contextindex.Coordinator
	Resolver *resolver.Resolver
	Records  feedback.Repository
	Review   *review.Service

	logger  *slog.Logger
	closers []func() error
}

// Options overrides the externally backed pieces. Zero values are built
// from Config.
type Options struct {
	Provider llm.Provider
	Builder  contextindex.Builder
	Locker   contextindex.Locker
}

// New wires every service around st.
func New(ctx context.Context, cfg config.Config, st *store.Store, opts Options, log *slog.Logger) (*App, error) {
	log = logger.OrDefault(log)
	a := &App{Config: cfg, Store: st, logger: log}

	llmCfg := cfg.LLM
	if err := llmCfg.Validate(); err != nil {
		if discovered, ok := llm.DiscoverConfig(); ok {
			llmCfg = discovered
		}
	}

	provider := opts.Provider
	if provider == nil {
		p, err := llm.NewProvider(ctx, llmCfg, st.EventRepo())
		if err != nil {
			log.WarnContext(ctx, "LLM provider not configured; feedback and vision OCR are unavailable", "error", err)
		} else {
			provider = p
		}
	}

	builder := opts.Builder
	if builder == nil {
		b, err := newPipeline(cfg, llmCfg, provider, log)
		if err != nil {
			return nil, err
		}
		builder = b
	}

	locker := opts.Locker
	if locker == nil {
		l, err := a.newLocker(ctx, cfg)
		if err != nil {
			return nil, err
		}
		locker = l
	}

	a.Indexes = contextindex.NewCoordinator(builder,
		contextindex.NewStoreRepository(st.IndexRepo()), locker, cfg.Index, log)
	a.Resolver = resolver.New(newScorer(ctx, cfg, llmCfg, log), cfg.Resolver, log)
	a.Records = feedback.NewStoreRepository(st.FeedbackRepo())

	if provider != nil {
		composer := feedback.NewComposer(provider, cfg.Feedback, log)
		a.Review = review.NewService(a.Indexes, a.Resolver, composer, a.Records, log)
	}
	return a, nil
}

// Close releases connections opened by New. The store is owned by the
// caller.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func newPipeline(cfg config.Config, llmCfg llm.Config, provider llm.Provider, log *slog.Logger) (*contextindex.Pipeline, error) {
	var engine ocr.Engine
	switch cfg.OCR.Engine {
	case "tesseract":
		engine = ocr.NewTesseractEngine(cfg.OCR.Language)
	case "vision":
		if provider == nil {
			return nil, fmt.Errorf("vision OCR: %w", ErrNoProvider)
		}
		engine = ocr.NewVisionEngine(llm.WithRetry(provider, llm.DefaultRetryConfig()))
	default:
		return nil, fmt.Errorf("unknown OCR engine: %q", cfg.OCR.Engine)
	}

	transcriber, err := transcribe.NewEngine(cfg.Transcribe, llmCfg.OpenAI.APIKey, llmCfg.OpenAI.BaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("transcription engine: %w", err)
	}

	hash, err := cfg.IndexFingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprint extraction settings: %w", err)
	}

	keyframes := keyframe.NewExtractor(keyframe.NewFFmpegSource(cfg.Keyframe), keyframe.LoadFile, cfg.Keyframe, log)
	return contextindex.NewPipeline(media.NewFFProbe(), keyframes,
		ocr.NewExtractor(engine, cfg.OCR, log), transcriber, hash, log), nil
}

func (a *App) newLocker(ctx context.Context, cfg config.Config) (contextindex.Locker, error) {
	if cfg.RedisURL == "" {
		return lease.NopLocker{}, nil
	}
	client, err := lease.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lease.NewRedisLocker(client, cfg.Lease, a.logger), nil
}

func newScorer(ctx context.Context, cfg config.Config, llmCfg llm.Config, log *slog.Logger) resolver.Scorer {
	lexical := resolver.LexicalScorer{MarkerWeight: cfg.Resolver.MarkerWeight}
	if !cfg.Resolver.Embeddings {
		return lexical
	}
	embedder, err := llm.NewOpenAIEmbedder(llmCfg.OpenAI)
	if err != nil {
		log.WarnContext(ctx, "embedding fallback disabled", "error", err)
		return lexical
	}
	return resolver.FallbackScorer{
		Primary:   lexical,
		Secondary: resolver.NewEmbeddingScorer(embedder, cfg.Resolver.EmbeddingBaseline),
		NearZero:  cfg.Resolver.NearZero,
		Logger:    log,
	}
}
