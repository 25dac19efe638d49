// Package keyframe samples representative frames from a video.
package keyframe

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

const thumbSize = 32

// Loader opens the image behind a frame reference.
type Loader func(ref string) (image.Image, error)

// LoadFile decodes a PNG or JPEG file.
func LoadFile(ref string) (image.Image, error) {
	f, err := os.Open(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// Extractor turns sampled frames into an ordered, de-duplicated keyframe
// sequence. Text fields are left empty for OCR to fill.
type Extractor struct {
	source FrameSource
	load   Loader
	config Config
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil loader reads frames from disk.
func NewExtractor(source FrameSource, load Loader, cfg Config, log *slog.Logger) *Extractor {
	if load == nil {
		load = LoadFile
	}
	return &Extractor{source: source, load: load, config: cfg, logger: logger.OrDefault(log)}
}

// Extract samples the asset's frames. A decoding failure of the whole video
// returns media.ErrMediaUnreadable; individual frames that fail to load are
// skipped, and zero usable frames is not an error.
func (e *Extractor) Extract(ctx context.Context, asset media.VideoAsset) ([]media.Keyframe, error) {
	sc := logger.StartSpan(ctx, "keyframe.extract")
	defer sc.End()
	ctx = sc.Context()

	frames, err := e.source.Frames(ctx, asset)
	if err != nil {
		sc.RecordError(err)
		if errors.Is(err, media.ErrMediaUnreadable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, media.Unreadable(asset.FileRef, err)
	}

	for i := range frames {
		frames[i].Timestamp = clamp(frames[i].Timestamp, asset.DurationSeconds)
	}
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp < frames[j].Timestamp
	})

	thumbs, err := e.thumbnails(ctx, frames)
	if err != nil {
		e.release(ctx, frameRefs(frames))
		return nil, err
	}

	var out []media.Keyframe
	var prev *image.Gray
	skipped := 0
	for i, f := range frames {
		t := thumbs[i]
		if t == nil {
			skipped++
			continue
		}
		if len(out) > 0 && f.Timestamp == out[len(out)-1].Timestamp {
			continue
		}
		if prev != nil && meanDiff(prev, t) < e.config.DuplicateThreshold {
			continue
		}
		out = append(out, media.Keyframe{Timestamp: f.Timestamp, FrameRef: f.Ref})
		prev = t
		if e.config.MaxFrames > 0 && len(out) >= e.config.MaxFrames {
			break
		}
	}

	e.logger.InfoContext(ctx, "keyframes extracted",
		"file", asset.FileRef,
		"sampled", len(frames),
		"retained", len(out),
		"undecodable", skipped)
	if len(out) == 0 {
		e.release(ctx, frameRefs(frames))
	}
	return out, nil
}

// Release hands the images behind keyframes back to the frame source once
// OCR is done with them. It reports whether they were deleted, in which
// case FrameRef no longer points at anything.
func (e *Extractor) Release(ctx context.Context, keyframes []media.Keyframe) bool {
	refs := make([]string, 0, len(keyframes))
	for _, kf := range keyframes {
		if kf.FrameRef != "" {
			refs = append(refs, kf.FrameRef)
		}
	}
	return len(refs) > 0 && e.release(ctx, refs)
}

func (e *Extractor) release(ctx context.Context, refs []string) bool {
	r, ok := e.source.(FrameReleaser)
	if !ok || e.config.KeepFrames {
		return false
	}
	if err := r.Release(refs); err != nil {
		e.logger.WarnContext(ctx, "failed to remove frame images", "error", err)
		return false
	}
	return true
}

func frameRefs(frames []Frame) []string {
	refs := make([]string, len(frames))
	for i, f := range frames {
		refs[i] = f.Ref
	}
	return refs
}

// thumbnails decodes every frame on a bounded pool. Frames that fail to
// decode get a nil thumbnail.
func (e *Extractor) thumbnails(ctx context.Context, frames []Frame) ([]*image.Gray, error) {
	thumbs := make([]*image.Gray, len(frames))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.config.Workers, 1))
	for i, f := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := e.load(f.Ref)
			if err != nil {
				e.logger.DebugContext(ctx, "skipping undecodable frame", "ref", f.Ref, "error", err)
				return nil
			}
			thumbs[i] = thumbnail(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}
	return thumbs, nil
}

// thumbnail downsamples img to a small grayscale square for comparison.
func thumbnail(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, thumbSize, thumbSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// meanDiff is the mean absolute pixel difference of two thumbnails in [0,1].
func meanDiff(a, b *image.Gray) float64 {
	var sum int
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a.Pix)*255)
}

func clamp(ts, duration float64) float64 {
	if ts < 0 {
		return 0
	}
	if duration > 0 && ts > duration {
		return duration
	}
	return ts
}
