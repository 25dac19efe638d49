package contextindex

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/transcribe"
)

// KeyframeExtractor samples representative frames from a video.
type KeyframeExtractor interface {
	Extract(ctx context.Context, asset media.VideoAsset) ([]media.Keyframe, error)
}

// Annotator attaches on-screen text to keyframes.
type Annotator interface {
	Annotate(ctx context.Context, keyframes []media.Keyframe) ([]media.Keyframe, error)
}

// FrameReleaser is implemented by extractors whose keyframe images are
// temporary. Release reports whether the images were deleted.
type FrameReleaser interface {
	Release(ctx context.Context, keyframes []media.Keyframe) bool
}

// Pipeline runs the extraction stages for a single video.
type Pipeline struct {
	prober      media.Prober
	keyframes   KeyframeExtractor
	ocr         Annotator
	transcriber transcribe.Engine
	configHash  string
	logger      *slog.Logger
}

// NewPipeline wires the extraction stages. configHash identifies the
// settings they run with and is stamped on every index built.
func NewPipeline(prober media.Prober, keyframes KeyframeExtractor, ocr Annotator, transcriber transcribe.Engine, configHash string, log *slog.Logger) *Pipeline {
	return &Pipeline{
		prober:      prober,
		keyframes:   keyframes,
		ocr:         ocr,
		transcriber: normalizing(transcriber),
		configHash:  configHash,
		logger:      logger.OrDefault(log),
	}
}

// ConfigHash returns the fingerprint stamped on built indexes.
func (p *Pipeline) ConfigHash() string {
	return p.configHash
}

// Inspect identifies the video without extracting anything.
func (p *Pipeline) Inspect(ctx context.Context, fileRef string) (media.VideoAsset, error) {
	return media.Inspect(ctx, p.prober, fileRef)
}

// Run inspects fileRef and builds its index.
func (p *Pipeline) Run(ctx context.Context, itemID, fileRef string) (*ContextIndex, error) {
	asset, err := p.Inspect(ctx, fileRef)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, itemID, asset)
}

// Process extracts visual and spoken text concurrently and assembles the
// index. Any stage failure aborts the build.
func (p *Pipeline) Process(ctx context.Context, itemID string, asset media.VideoAsset) (*ContextIndex, error) {
	sc := logger.StartSpan(ctx, "index.build")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		LearningItemID: itemID,
		Component:      "contextindex",
	})

	var (
		keyframes []media.Keyframe
		segments  []media.TranscriptSegment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kfs, err := p.visualText(gctx, asset)
		keyframes = kfs
		return err
	})
	g.Go(func() error {
		segs, err := p.transcriber.Transcribe(gctx, asset)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		segments = segs
		return nil
	})
	if err := g.Wait(); err != nil {
		sc.RecordError(err)
		return nil, err
	}

	idx, err := Build(itemID, asset, keyframes, segments)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	idx.ConfigHash = p.configHash

	p.logger.InfoContext(ctx, "context index built",
		"content_hash", asset.ContentHash,
		"duration_seconds", asset.DurationSeconds,
		"keyframes", len(idx.Keyframes),
		"segments", len(idx.Segments))
	return idx, nil
}

// visualText samples and reads the keyframes. Frame images are released
// as soon as OCR is done with them, whether or not it succeeded.
func (p *Pipeline) visualText(ctx context.Context, asset media.VideoAsset) ([]media.Keyframe, error) {
	kfs, err := p.keyframes.Extract(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("extract keyframes: %w", err)
	}
	annotated, err := p.ocr.Annotate(ctx, kfs)
	if r, ok := p.keyframes.(FrameReleaser); ok && r.Release(ctx, kfs) {
		for i := range annotated {
			annotated[i].FrameRef = ""
		}
	}
	if err != nil {
		return nil, fmt.Errorf("annotate keyframes: %w", err)
	}
	return annotated, nil
}

func normalizing(e transcribe.Engine) transcribe.Engine {
	if n, ok := e.(transcribe.Normalizing); ok {
		return n
	}
	return transcribe.Normalizing{Engine: e}
}
