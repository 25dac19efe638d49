// Package ocr extracts visible text from keyframes.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// Result is the text recognized on one frame.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine recognizes text on a frame image. Engines may be
// non-deterministic; repeated calls on the same frame can differ slightly.
type Engine interface {
	Recognize(ctx context.Context, frameRef string) (Result, error)
}

// Config controls text extraction.
type Config struct {
	Engine        string  `json:"engine"` // tesseract or vision
	Language      string  `json:"language"`
	MinConfidence float64 `json:"min_confidence"`
	MaxAttempts   int     `json:"-"`
	Workers       int     `json:"-"`
}

// DefaultConfig returns the default OCR configuration.
func DefaultConfig() Config {
	return Config{
		Engine:        "tesseract",
		Language:      "eng",
		MinConfidence: 0.6,
		MaxAttempts:   2,
		Workers:       4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Engine {
	case "tesseract", "vision":
	default:
		return fmt.Errorf("unknown OCR engine %q", c.Engine)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// Extractor annotates keyframes with recognized text.
type Extractor struct {
	engine Engine
	config Config
	logger *slog.Logger
}

// NewExtractor creates an Extractor around engine.
func NewExtractor(engine Engine, cfg Config, log *slog.Logger) *Extractor {
	return &Extractor{engine: engine, config: cfg, logger: logger.OrDefault(log)}
}

// Annotate returns a copy of keyframes with Text and Confidence filled in.
// Text below MinConfidence is blanked but the keyframe is kept. A frame
// that keeps failing after MaxAttempts is blanked too; only cancellation
// fails the call.
func (e *Extractor) Annotate(ctx context.Context, keyframes []media.Keyframe) ([]media.Keyframe, error) {
	sc := logger.StartSpan(ctx, "ocr.recognize")
	defer sc.End()
	ctx = sc.Context()

	out := make([]media.Keyframe, len(keyframes))
	copy(out, keyframes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.config.Workers, 1))
	for i := range out {
		g.Go(func() error {
			res, err := e.recognize(gctx, out[i].FrameRef)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.WarnContext(gctx, "ocr failed, frame left without text",
					"frame", out[i].FrameRef,
					"timestamp", out[i].Timestamp,
					"error", err)
				out[i].Text, out[i].Confidence = "", 0
				return nil
			}
			out[i].Confidence = media.ClampConfidence(res.Confidence)
			out[i].Text = cleanText(res.Text)
			if out[i].Confidence < e.config.MinConfidence {
				out[i].Text = ""
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sc.RecordError(err)
		return nil, err
	}

	withText := 0
	for _, k := range out {
		if k.Text != "" {
			withText++
		}
	}
	e.logger.InfoContext(ctx, "ocr complete", "frames", len(out), "with_text", withText)
	return out, nil
}

func (e *Extractor) recognize(ctx context.Context, ref string) (Result, error) {
	attempts := max(e.config.MaxAttempts, 1)
	var lastErr error
	for range attempts {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := e.engine.Recognize(ctx, ref)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return Result{}, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// cleanText collapses whitespace inside lines and drops blank lines.
func cleanText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
